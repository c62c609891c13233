package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"interviewprep/cmd/internal/auth/session"
)

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.Claims{}, false
	}
	claims, err := h.tokens.Verify(token, h.now())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.Claims{}, false
	}
	return claims, true
}

// requireOwner authenticates a GET on /api/user/{id}/... and only admits the account itself.
func (h *Handler) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return "", false
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return "", false
	}
	if id := r.PathValue("id"); id != claims.AccountID {
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
		return "", false
	}
	return claims.AccountID, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

// parseForwardedIP takes the left-most valid entry of X-Forwarded-For.
func parseForwardedIP(raw string) net.IP {
	for _, part := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			return ip
		}
	}
	return nil
}
