package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Hub tracks live sessions per account.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.RWMutex
	accounts map[string]map[string]*Client
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		accounts: make(map[string]map[string]*Client),
	}
}

func (h *Hub) Join(c *Client) {
	if c == nil || c.AccountID == "" || c.SessionID == "" {
		return
	}

	h.mu.Lock()
	sessions := h.accounts[c.AccountID]
	if sessions == nil {
		sessions = make(map[string]*Client)
		h.accounts[c.AccountID] = sessions
	}
	sessions[c.SessionID] = c
	h.mu.Unlock()

	h.log.Debug("realtime.join", "account_id", c.AccountID, "session_id", c.SessionID)
}

// Leave removes the session, then closes it.
func (h *Hub) Leave(accountID, sessionID string) {
	var c *Client

	h.mu.Lock()
	if sessions := h.accounts[accountID]; sessions != nil {
		c = sessions[sessionID]
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.accounts, accountID)
		}
	}
	h.mu.Unlock()

	if c != nil {
		c.Close()
		h.log.Debug("realtime.leave", "account_id", accountID, "session_id", sessionID)
	}
}

// Sessions returns how many sessions the account has open.
func (h *Hub) Sessions(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts[accountID])
}

// PublishQuota sends a quota.updated event to every session of accountID.
func (h *Hub) PublishQuota(accountID string, questionsAvailable int) {
	ev := quotaEvent(TypeQuotaUpdated, questionsAvailable, h.now())

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.accounts[accountID] {
		if !c.offer(ev) {
			h.log.Debug("realtime.drop", "account_id", accountID, "session_id", c.SessionID)
		}
	}
}
