package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"interviewprep/cmd/internal/auth/session"
	"interviewprep/cmd/internal/ledger"
)

const (
	wsSubprotocol = "prep.quota.v1"

	wsDefaultSendQueueSize = 16
	wsDefaultWriteTimeout  = 5 * time.Second
	wsDefaultReadIdle      = 2 * time.Minute
	wsCloseGrace           = time.Second
	wsMaxPingFailures      = 3

	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// AccountReader resolves the quota shown in the hello frame.
type AccountReader interface {
	GetAccount(ctx context.Context, id string) (ledger.Account, error)
}

// WSGateway authenticates a bearer token, registers the connection with the
// Hub and streams quota events until either side goes away.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	tokens   session.Tokens
	accounts AccountReader

	devInsecure    bool
	originRequired bool
	allowedOrigins []string
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway reads PREP_WS_* overrides from the environment.
func NewWSGateway(log *slog.Logger, hub *Hub, tokens session.Tokens, accounts AccountReader) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &WSGateway{log: log, hub: hub, tokens: tokens, accounts: accounts}

	g.devInsecure = envBoolWS("PREP_WS_DEV_INSECURE", false)
	g.originRequired = envBoolWS("PREP_WS_ORIGIN_REQUIRED", false)
	g.allowedOrigins = envCSVWS("PREP_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = originPatterns(g.allowedOrigins)

	g.writeTimeout = envDurationWS("PREP_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("PREP_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.sendQueueSize = envIntWS("PREP_WS_SEND_QUEUE", wsDefaultSendQueueSize)

	g.heartbeatEvery = envDurationWS("PREP_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("PREP_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("PREP_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("PREP_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates, upgrades and runs the session loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	accountID, err := g.authenticate(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	acct, err := g.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		if ledger.IsNotFound(err) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.log.Error("ws.account.fail", "account_id", accountID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(acct.ID, newSessionID(), g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(client.AccountID, client.SessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	hello := quotaEvent(TypeHello, acct.QuestionsAvailable, time.Now().UTC())
	hello.SessionID = client.SessionID
	client.offer(hello)
	g.hub.Join(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.Send:
				if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", client.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				g.log.Info("ws.ping.fail", "session_id", client.SessionID, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		msg, err := readInbound(readCtx, conn)
		readCancel()

		now := time.Now().UTC()
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				client.offer(errorEvent("bad_json", "invalid JSON", now))
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", client.SessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(now) {
			client.offer(errorEvent("rate_limited", "too many events", now))
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		switch msg.Type {
		case "ping":
			client.offer(Event{Type: TypePong, TS: now})
		default:
			client.offer(errorEvent("unsupported", fmt.Sprintf("unsupported type: %q", msg.Type), now))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// authenticate accepts the token from ?token= (browsers cannot set headers on
// WebSocket upgrades) or from an Authorization bearer header.
func (g *WSGateway) authenticate(r *http.Request) (string, error) {
	if g.tokens == nil {
		return "", session.ErrInvalidToken
	}

	tok := strings.TrimSpace(r.URL.Query().Get("token"))
	if tok == "" {
		h := r.Header.Get("Authorization")
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			tok = strings.TrimSpace(h[7:])
		}
	}
	if tok == "" {
		return "", session.ErrInvalidToken
	}

	claims, err := g.tokens.Verify(tok, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return claims.AccountID, nil
}

func readInbound(ctx context.Context, conn *websocket.Conn) (inbound, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return inbound{}, err
	}
	if mt != websocket.MessageText {
		return inbound{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return inbound{}, errBadJSON
	}
	return in, nil
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

var errBadJSON = errors.New("bad json")

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := originHostOnly(origin)
	for _, a := range g.allowedOrigins {
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.Accept host patterns so
// both checks agree on cross-origin requests.
func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
