package realtime

import "sync"

// Client is one connected WebSocket session.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals shutdown instead. Close is idempotent.
type Client struct {
	SessionID string
	AccountID string
	Send      chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(accountID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 16
	}
	return &Client{
		SessionID: sessionID,
		AccountID: accountID,
		Send:      make(chan Event, sendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// offer enqueues ev without blocking. It reports false when the client is
// closing or its queue is full.
func (c *Client) offer(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- ev:
		return true
	default:
		return false
	}
}
