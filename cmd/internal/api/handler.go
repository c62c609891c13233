// Package api serves the JSON HTTP API under /api.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"interviewprep/cmd/internal/auth/session"
	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/quota"
	"interviewprep/cmd/internal/realtime"
	"interviewprep/cmd/internal/settings"
)

const (
	passwordMinLen  = 6
	passwordMaxLen  = 20
	answerMinLen    = 10
	emailMaxLen     = 254
	excludeMaxItems = 500
)

// Handler serves the quota, question and progress endpoints.
type Handler struct {
	log       *slog.Logger
	cfg       Config
	quota     *quota.Service
	questions questions.Store
	settings  settings.Store
	tokens    session.Tokens

	ws      http.Handler
	loginIP *realtime.KeyedLimiter
	now     func() time.Time
}

type HandlerOption func(*Handler)

// WithRealtime mounts the WebSocket feed at /api/ws.
func WithRealtime(ws http.Handler) HandlerOption {
	return func(h *Handler) { h.ws = ws }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, svc *quota.Service, qs questions.Store, st settings.Store, tokens session.Tokens, opts ...HandlerOption) (*Handler, error) {
	if svc == nil || qs == nil || st == nil || tokens == nil {
		return nil, errors.New("api: quota service, question store, settings store and tokens are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		quota:     svc,
		questions: qs,
		settings:  st,
		tokens:    tokens,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	if cfg.LoginIPMax > 0 {
		h.loginIP = realtime.NewKeyedLimiter(cfg.LoginIPMax, cfg.LoginIPWindow)
	}
	return h, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/questions/random", h.handleRandomQuestion)
	mux.HandleFunc("/api/questions/submit", h.handleSubmit)
	mux.HandleFunc("/api/user/{id}/progress", h.handleProgress)
	mux.HandleFunc("/api/user/{id}/answers", h.handleAnswers)
	mux.HandleFunc("/api/user/{id}/referrals", h.handleReferrals)
	mux.HandleFunc("/api/marketing/{group}", h.handleMarketing)
	if h.ws != nil {
		mux.Handle("/api/ws", h.ws)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	ctx := r.Context()
	// A malformed code registers like no code at all.
	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	if code != "" && len(code) != ledger.ReferralCodeLength {
		h.log.DebugContext(ctx, "api.register.referral_malformed", "len", len(code))
		code = ""
	}

	reg, err := h.quota.Register(ctx, quota.RegisterInput{Email: email, ReferralCode: code})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, exp, err := h.tokens.Issue(reg.Account.ID, h.now())
	if err != nil {
		h.log.ErrorContext(ctx, "api.register.token_fail", "account_id", reg.Account.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		User:      toUserResponse(reg.Account, false),
		Password:  reg.Password,
		Token:     token,
		ExpiresAt: exp,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	ctx := r.Context()
	now := h.now()
	if h.loginIP != nil {
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			if ok, retry := h.loginIP.Allow(ip.String(), now); !ok {
				h.log.WarnContext(ctx, "api.login.throttle_ip", "ip", ip.String())
				writeRateLimited(w, retry)
				return
			}
		}
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if n := utf8.RuneCountInString(req.Password); n < passwordMinLen || n > passwordMaxLen {
		writeError(w, http.StatusBadRequest, "invalid_password", "password must be 6 to 20 characters")
		return
	}

	acct, err := h.quota.Login(ctx, email, req.Password)
	if err != nil {
		if !errors.Is(err, quota.ErrInvalidCredentials) {
			h.log.ErrorContext(ctx, "api.login.fail", "err", err)
		}
		writeServiceError(w, err)
		return
	}

	token, exp, err := h.tokens.Issue(acct.ID, now)
	if err != nil {
		h.log.ErrorContext(ctx, "api.login.token_fail", "account_id", acct.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:      toUserResponse(acct, true),
		Token:     token,
		ExpiresAt: exp,
	})
}

func (h *Handler) handleRandomQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	exclude := parseExclude(r.URL.Query().Get("exclude"))
	if len(exclude) > excludeMaxItems {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many excluded questions")
		return
	}

	q, err := h.questions.Random(r.Context(), exclude)
	if err != nil {
		if errors.Is(err, questions.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no_questions", "no questions available")
			return
		}
		h.log.ErrorContext(r.Context(), "api.questions.random_fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	req.QuestionID = strings.TrimSpace(req.QuestionID)
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "questionId is required")
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Answer)) < answerMinLen {
		writeError(w, http.StatusBadRequest, "answer_too_short", "answer must be at least 10 characters long")
		return
	}

	ctx := r.Context()
	res, err := h.quota.SubmitAnswer(ctx, quota.SubmitInput{
		AccountID:  claims.AccountID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
	})
	if err != nil {
		if !errors.Is(err, quota.ErrQuotaExhausted) && !errors.Is(err, questions.ErrNotFound) {
			h.log.ErrorContext(ctx, "api.submit.fail", "account_id", claims.AccountID, "err", err)
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Evaluation:         res.Evaluation,
		UserAnswer:         toAnswerResponse(res.Answer),
		QuestionsRemaining: res.QuestionsRemaining,
		Pending:            res.Pending,
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	p, err := h.quota.GetProgress(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	as, err := h.quota.ListAnswers(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnswerList(as))
}

func (h *Handler) handleReferrals(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	stats, err := h.quota.GetReferralStats(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleMarketing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	group := strings.TrimSpace(r.PathValue("group"))
	msgs := h.settings.GetMarketingConfig(r.Context(), group)
	if msgs == nil {
		msgs = map[string]string{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// normalizeEmail trims raw and checks it is a bare address. Case is kept:
// accounts are keyed by the exact string.
func normalizeEmail(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > emailMaxLen {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return "", false
	}
	return s, true
}

func parseExclude(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}
