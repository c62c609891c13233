package realtime

import "time"

// Event types sent to clients.
const (
	TypeHello        = "hello"
	TypeQuotaUpdated = "quota.updated"
	TypePong         = "pong"
	TypeError        = "error"
)

// Event is the only frame shape on the wire.
type Event struct {
	Type               string    `json:"type"`
	QuestionsAvailable *int      `json:"questionsAvailable,omitempty"`
	SessionID          string    `json:"sessionId,omitempty"`
	Code               string    `json:"code,omitempty"`
	Message            string    `json:"message,omitempty"`
	TS                 time.Time `json:"ts"`
}

// inbound is what clients may send. Only "ping" is understood.
type inbound struct {
	Type string `json:"type"`
}

func quotaEvent(typ string, n int, now time.Time) Event {
	return Event{Type: typ, QuestionsAvailable: &n, TS: now}
}

func errorEvent(code, msg string, now time.Time) Event {
	return Event{Type: TypeError, Code: code, Message: msg, TS: now}
}
