// Package main is a CI-friendly smoke test for the quota feed.
//
// It validates:
//   - register over HTTP and WebSocket handshake with the issued token
//   - hello frame carrying the current quota
//   - ping -> pong
//   - referral credit pushed to the referrer as quota.updated
//   - answer submission pushed as quota.updated
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "prep.quota.v1"
	maxReadBytes       = 64 << 10
)

type event struct {
	Type               string    `json:"type"`
	QuestionsAvailable *int      `json:"questionsAvailable"`
	SessionID          string    `json:"sessionId"`
	Code               string    `json:"code"`
	Message            string    `json:"message"`
	TS                 time.Time `json:"ts"`
}

type registration struct {
	User struct {
		ID                 string `json:"id"`
		QuestionsAvailable int    `json:"questionsAvailable"`
		ReferralCode       string `json:"referralCode"`
	} `json:"user"`
	Token string `json:"token"`
}

type smokeClient struct {
	conn      *websocket.Conn
	sessionID string

	inbox chan event
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		answer  = flag.String("answer", "I split the work into milestones and shipped a week early.", "Answer text to submit")
		timeout = flag.Duration("timeout", 45*time.Second, "Per-step timeout (submission waits for scoring)")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -base: %v", err)
	}

	root := context.Background()
	httpc := &http.Client{Timeout: *timeout}
	stamp := time.Now().UnixNano()

	a := mustRegister(httpc, *baseURL, fmt.Sprintf("smoke-a-%d@example.com", stamp), "")
	quota := a.User.QuestionsAvailable

	c := mustConnect(root, wsURL(*baseURL, a.Token), *origin, *timeout)
	defer closeWS(c.conn)

	hello := c.mustReadUntilType(root, "hello", *timeout)
	c.sessionID = hello.SessionID
	mustQuota("hello", hello, quota)
	if *verbose {
		fmt.Printf("connected: account=%s session=%s quota=%d\n", a.User.ID, c.sessionID, quota)
	}

	mustWrite(root, c.conn, map[string]string{"type": "ping"}, *timeout)
	c.mustReadUntilType(root, "pong", *timeout)

	b := mustRegister(httpc, *baseURL, fmt.Sprintf("smoke-b-%d@example.com", stamp), a.User.ReferralCode)
	credited := c.mustReadUntilType(root, "quota.updated", *timeout)
	if credited.QuestionsAvailable == nil || *credited.QuestionsAvailable <= quota {
		fatalf("referral credit not applied: before=%d after=%v", quota, credited.QuestionsAvailable)
	}
	quota = *credited.QuestionsAvailable
	if *verbose {
		fmt.Printf("referral: invitee=%s referrer quota=%d\n", b.User.ID, quota)
	}

	questionID := mustRandomQuestion(httpc, *baseURL)
	mustSubmit(httpc, *baseURL, a.Token, questionID, *answer)
	consumed := c.mustReadUntilType(root, "quota.updated", *timeout)
	mustQuota("submit", consumed, quota-1)

	fmt.Printf("OK: account=%s session=%s quota=%d\n", a.User.ID, c.sessionID, quota-1)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func wsURL(base, token string) string {
	u, _ := url.Parse(strings.TrimRight(base, "/") + "/api/ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func mustRegister(c *http.Client, base, email, code string) registration {
	body := map[string]string{"email": email}
	if code != "" {
		body["referralCode"] = code
	}
	var reg registration
	mustDo(c, http.MethodPost, base+"/api/auth/register", "", body, &reg)
	if reg.Token == "" || reg.User.ID == "" {
		fatalf("register %s: missing token or id", email)
	}
	return reg
}

func mustRandomQuestion(c *http.Client, base string) string {
	var q struct {
		ID string `json:"id"`
	}
	mustDo(c, http.MethodGet, base+"/api/questions/random", "", nil, &q)
	if q.ID == "" {
		fatalf("random question: missing id")
	}
	return q.ID
}

func mustSubmit(c *http.Client, base, token, questionID, answer string) {
	var res struct {
		QuestionsRemaining int  `json:"questionsRemaining"`
		Pending            bool `json:"pending"`
	}
	mustDo(c, http.MethodPost, base+"/api/questions/submit", token,
		map[string]string{"questionId": questionID, "answer": answer}, &res)
	if res.Pending {
		fatalf("submit: outcome deferred to the outbox; no quota.updated will follow yet")
	}
}

func mustDo(c *http.Client, method, target, token string, body, out any) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, rdr)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		fatalf("%s %s: status=%d body=%s", method, target, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		fatalf("%s %s: decode: %v", method, target, err)
	}
}

func mustConnect(parent context.Context, target, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan event, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got != "" && got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			var ev event
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
				select {
				case c.errCh <- fmt.Errorf("bad frame %q: %v", data, err):
				default:
				}
				return
			}

			select {
			case c.inbox <- ev:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) event {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case ev, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if ev.Type == wantType {
				return ev
			}
			if ev.Type == "error" {
				fatalf("server error: code=%q msg=%q", ev.Code, ev.Message)
			}
			fatalf("unexpected frame type: got=%q want=%q", ev.Type, wantType)
		}
	}
}

func mustQuota(step string, ev event, want int) {
	if ev.QuestionsAvailable == nil {
		fatalf("%s: frame missing questionsAvailable", step)
	}
	if *ev.QuestionsAvailable != want {
		fatalf("%s: questionsAvailable=%d want=%d", step, *ev.QuestionsAvailable, want)
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, v any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
