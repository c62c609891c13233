package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"interviewprep/cmd/internal/auth/session"
	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/quota"
	"interviewprep/cmd/internal/scoring"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/security/password"
)

type fixedEvaluator struct{}

func (fixedEvaluator) Evaluate(context.Context, scoring.Request) scoring.Evaluation {
	return scoring.Evaluation{
		Score:              8,
		PositiveComment:    "clear structure",
		ImprovementComment: "quantify the result",
		StructureScore:     8,
		ContentScore:       7,
		CommunicationScore: 9,
	}
}

type testServer struct {
	mux      *http.ServeMux
	ledger   *ledger.MemoryStore
	question questions.Question
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1

	store := ledger.NewMemoryStore()
	starter := questions.StarterSet()[:2]
	qs := questions.NewMemoryStore(starter)
	st := settings.NewMemoryStore()

	svc, err := quota.NewService(store, st, qs, fixedEvaluator{},
		quota.WithGroupPolicy(quota.FixedGroupPolicy(settings.GroupA)),
		quota.WithPasswordConfig(pw),
		quota.WithLogger(log),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	scfg := session.DefaultConfig()
	scfg.SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	tokens, err := session.NewManager(scfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewHandler(log, cfg, svc, qs, st, tokens)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{mux: mux, ledger: store, question: starter[0]}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			rdr = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rec).Error.Code
}

func (s *testServer) register(t *testing.T, email, code string) registerResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{Email: email, ReferralCode: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body.String())
	}
	return decode[registerResponse](t, rec)
}

func TestAPI_RegisterLoginSubmitProgress(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	reg := s.register(t, "  alice@example.com ", "")
	if reg.User.Email != "alice@example.com" {
		t.Fatalf("email = %q", reg.User.Email)
	}
	if reg.User.QuestionsAvailable != 13 || reg.User.ABGroup != settings.GroupA {
		t.Fatalf("user = %+v", reg.User)
	}
	if len(reg.Password) != password.GeneratedLength || reg.Token == "" {
		t.Fatalf("missing password or token: %+v", reg)
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "alice@example.com", Password: reg.Password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	login := decode[loginResponse](t, rec)
	if login.User.QuestionsCompleted == nil || *login.User.QuestionsCompleted != 0 {
		t.Fatalf("questionsCompleted = %v", login.User.QuestionsCompleted)
	}

	rec = s.do(t, http.MethodGet, "/api/questions/random", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("random status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/questions/submit", login.Token, submitRequest{
		QuestionID: s.question.ID,
		Answer:     "I led the migration and cut costs by 30 percent.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body.String())
	}
	sub := decode[submitResponse](t, rec)
	if sub.QuestionsRemaining != 12 || sub.Pending {
		t.Fatalf("submit = %+v", sub)
	}
	if sub.Evaluation.Score != 8 || sub.UserAnswer.UserID != reg.User.ID {
		t.Fatalf("submit evaluation/answer = %+v", sub)
	}

	uid := reg.User.ID
	rec = s.do(t, http.MethodGet, "/api/user/"+uid+"/progress", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d", rec.Code)
	}
	p := decode[quota.Progress](t, rec)
	if p.QuestionsCompleted != 1 || p.QuestionsAvailable != 12 || p.AverageScore != 8 {
		t.Fatalf("progress = %+v", p)
	}

	rec = s.do(t, http.MethodGet, "/api/user/"+uid+"/answers", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("answers status = %d", rec.Code)
	}
	if as := decode[[]answerResponse](t, rec); len(as) != 1 || as[0].QuestionID != s.question.ID {
		t.Fatalf("answers = %+v", as)
	}

	rec = s.do(t, http.MethodGet, "/api/user/"+uid+"/referrals", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("referrals status = %d", rec.Code)
	}
	if st := decode[quota.ReferralStats](t, rec); st.TotalReferrals != 0 || st.QuestionsEarned != 0 {
		t.Fatalf("referrals = %+v", st)
	}
}

func TestAPI_ReferralCredit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	a := s.register(t, "a@example.com", "")
	b := s.register(t, "b@example.com", a.User.ReferralCode)
	if b.User.QuestionsAvailable != 18 {
		t.Fatalf("invitee quota = %d", b.User.QuestionsAvailable)
	}

	rec := s.do(t, http.MethodGet, "/api/user/"+a.User.ID+"/referrals", a.Token, nil)
	st := decode[quota.ReferralStats](t, rec)
	if st.TotalReferrals != 1 || st.QuestionsEarned != 10 {
		t.Fatalf("referrals = %+v", st)
	}
}

func TestAPI_RegisterValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	s.register(t, "taken@example.com", "")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed", `{"email":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"email":"x@example.com","admin":true}`, http.StatusBadRequest, "invalid_json"},
		{"bad email", registerRequest{Email: "not-an-email"}, http.StatusBadRequest, "invalid_email"},
		{"display name", registerRequest{Email: "Bob <bob@example.com>"}, http.StatusBadRequest, "invalid_email"},
		{"duplicate", registerRequest{Email: "taken@example.com"}, http.StatusConflict, "email_taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAPI_RegisterUnknownReferralIgnored(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	referrer := s.register(t, "referrer@example.com", "")

	tests := []struct {
		name string
		code string
	}{
		{"unknown", "zzzzzz"},
		{"too short", "ABC"},
		{"too long", "TOOLONGCODE"},
		{"truncated real code", referrer.User.ReferralCode[:5]},
		{"blank", "   "},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := s.register(t, fmt.Sprintf("solo%d@example.com", i), tt.code)
			if reg.User.QuestionsAvailable != 13 {
				t.Fatalf("quota = %d, want 13", reg.User.QuestionsAvailable)
			}
		})
	}

	rec := s.do(t, http.MethodGet, "/api/user/"+referrer.User.ID+"/referrals", referrer.Token, nil)
	stats := decode[quota.ReferralStats](t, rec)
	if stats.TotalReferrals != 0 {
		t.Fatalf("referrer credited: %+v", stats)
	}
}

func TestAPI_EmailIsCaseSensitive(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	lower := s.register(t, "case@example.com", "")
	upper := s.register(t, "Case@example.com", "")
	if lower.User.ID == upper.User.ID {
		t.Fatalf("expected two accounts")
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "CASE@example.com", Password: lower.Password})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login with different case = %d, want 401", rec.Code)
	}
}

func TestAPI_Login(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	reg := s.register(t, "l@example.com", "")

	wrong := "x" + reg.Password[1:]
	if wrong == reg.Password {
		wrong = "y" + reg.Password[1:]
	}

	tests := []struct {
		name   string
		req    loginRequest
		status int
		code   string
	}{
		{"wrong password", loginRequest{Email: "l@example.com", Password: wrong}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown email", loginRequest{Email: "nobody@example.com", Password: reg.Password}, http.StatusUnauthorized, "invalid_credentials"},
		{"short password", loginRequest{Email: "l@example.com", Password: "abc"}, http.StatusBadRequest, "invalid_password"},
		{"long password", loginRequest{Email: "l@example.com", Password: "abcdefghijklmnopqrstuvwxyz"}, http.StatusBadRequest, "invalid_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/login", "", tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAPI_LoginThrottledPerIP(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *Config) {
		c.LoginIPMax = 2
		c.LoginIPWindow = time.Minute
	})

	req := loginRequest{Email: "nobody@example.com", Password: "secret123"}
	for i := 0; i < 2; i++ {
		if rec := s.do(t, http.MethodPost, "/api/auth/login", "", req); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if got := errorCode(t, rec); got != "rate_limited" {
		t.Fatalf("code = %q", got)
	}
}

func TestAPI_Submit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	reg := s.register(t, "s@example.com", "")
	answer := "Situation, task, action and a measurable result."

	tests := []struct {
		name   string
		token  string
		req    submitRequest
		status int
		code   string
	}{
		{"no token", "", submitRequest{QuestionID: s.question.ID, Answer: answer}, http.StatusUnauthorized, "unauthorized"},
		{"bad token", "v4.public.garbage", submitRequest{QuestionID: s.question.ID, Answer: answer}, http.StatusUnauthorized, "unauthorized"},
		{"short answer", reg.Token, submitRequest{QuestionID: s.question.ID, Answer: "too short"}, http.StatusBadRequest, "answer_too_short"},
		{"missing question", reg.Token, submitRequest{Answer: answer}, http.StatusBadRequest, "invalid_request"},
		{"unknown question", reg.Token, submitRequest{QuestionID: "nope", Answer: answer}, http.StatusNotFound, "question_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/questions/submit", tt.token, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAPI_SubmitQuotaExhausted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	reg := s.register(t, "empty@example.com", "")

	if _, err := s.ledger.AdjustQuestionsAvailable(context.Background(), reg.User.ID, -reg.User.QuestionsAvailable); err != nil {
		t.Fatalf("drain quota: %v", err)
	}

	rec := s.do(t, http.MethodPost, "/api/questions/submit", reg.Token, submitRequest{
		QuestionID: s.question.ID,
		Answer:     "An answer that will never be scored.",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if got := errorCode(t, rec); got != "quota_exhausted" {
		t.Fatalf("code = %q", got)
	}

	rec = s.do(t, http.MethodGet, "/api/user/"+reg.User.ID+"/answers", reg.Token, nil)
	if as := decode[[]answerResponse](t, rec); len(as) != 0 {
		t.Fatalf("answers = %+v", as)
	}
}

func TestAPI_UserRoutesOwnIDOnly(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	a := s.register(t, "own-a@example.com", "")
	b := s.register(t, "own-b@example.com", "")

	for _, suffix := range []string{"progress", "answers", "referrals"} {
		rec := s.do(t, http.MethodGet, "/api/user/"+b.User.ID+"/"+suffix, a.Token, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status = %d, want 403", suffix, rec.Code)
		}
		rec = s.do(t, http.MethodGet, "/api/user/"+a.User.ID+"/"+suffix, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token status = %d, want 401", suffix, rec.Code)
		}
	}
}

func TestAPI_RandomQuestionExclude(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	all := questions.StarterSet()[:2]

	rec := s.do(t, http.MethodGet, "/api/questions/random?exclude="+all[0].ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if q := decode[questions.Question](t, rec); q.ID != all[1].ID {
		t.Fatalf("got %s, want %s", q.ID, all[1].ID)
	}

	rec = s.do(t, http.MethodGet, "/api/questions/random?exclude="+all[0].ID+","+all[1].ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := errorCode(t, rec); got != "no_questions" {
		t.Fatalf("code = %q", got)
	}
}

func TestAPI_Marketing(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/marketing/B", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msgs := decode[map[string]string](t, rec)
	if msgs["hero_title"] != settings.DefaultMarketing()[settings.GroupB]["hero_title"] {
		t.Fatalf("marketing = %v", msgs)
	}

	rec = s.do(t, http.MethodGet, "/api/marketing/Z", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "{}\n" {
		t.Fatalf("unknown group: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/auth/register"},
		{http.MethodGet, "/api/auth/login"},
		{http.MethodPost, "/api/questions/random"},
		{http.MethodGet, "/api/questions/submit"},
		{http.MethodPost, "/api/marketing/A"},
	}
	for _, tt := range tests {
		rec := s.do(t, tt.method, tt.path, "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s = %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		remote     string
		xff        string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.10:5555", "", false, "192.0.2.10"},
		{"ignores xff untrusted", "192.0.2.10:5555", "203.0.113.7", false, "192.0.2.10"},
		{"trusted xff", "192.0.2.10:5555", "203.0.113.7, 10.0.0.1", true, "203.0.113.7"},
		{"bad xff falls back", "192.0.2.10:5555", "garbage", true, "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r, tt.trustProxy); got == nil || got.String() != tt.want {
				t.Fatalf("clientIP = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PREP_API_LOGIN_IP_MAX", "7")
	t.Setenv("PREP_API_LOGIN_IP_WINDOW", "bogus")
	t.Setenv("PREP_API_TRUST_PROXY", "true")

	cfg := LoadConfigFromEnv()
	if cfg.LoginIPMax != 7 || !cfg.TrustProxy {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.LoginIPWindow != DefaultConfig().LoginIPWindow {
		t.Fatalf("window = %v", cfg.LoginIPWindow)
	}
}
