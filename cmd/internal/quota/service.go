package quota

import (
	"context"
	"log/slog"
	"time"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/scoring"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/security/password"
)

// Evaluator scores an answer. It never fails.
type Evaluator interface {
	Evaluate(ctx context.Context, req scoring.Request) scoring.Evaluation
}

// Questions resolves the question an answer refers to.
type Questions interface {
	Get(ctx context.Context, id string) (questions.Question, error)
}

// OutcomeQueue holds outcomes that failed to record.
type OutcomeQueue interface {
	Push(ctx context.Context, o Outcome) error
}

// Publisher is told about quota changes (realtime feed).
type Publisher interface {
	PublishQuota(accountID string, questionsAvailable int)
}

// Observer receives domain events for metrics.
type Observer interface {
	Registered(group string, referralApplied bool)
	Submitted(status string)
}

// Submission statuses reported to Observer.
const (
	SubmitOK        = "ok"
	SubmitExhausted = "exhausted"
	SubmitDeferred  = "deferred"
)

type nopPublisher struct{}

func (nopPublisher) PublishQuota(string, int) {}

type nopObserver struct{}

func (nopObserver) Registered(string, bool) {}
func (nopObserver) Submitted(string)        {}

// Service implements the quota flows on top of the ledgers.
type Service struct {
	ledger    ledger.Store
	settings  settings.Store
	questions Questions
	evaluator Evaluator

	outbox    OutcomeQueue
	publisher Publisher
	observer  Observer
	groups    GroupPolicy
	passwords password.Config
	log       *slog.Logger
	now       func() time.Time
	newID     func() string

	// dummyHash keeps Login timing flat for unknown e-mails.
	dummyHash string
}

type Option func(*Service)

func WithGroupPolicy(p GroupPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.groups = p
		}
	}
}

func WithPasswordConfig(c password.Config) Option {
	return func(s *Service) { s.passwords = c }
}

func WithOutbox(q OutcomeQueue) Option {
	return func(s *Service) { s.outbox = q }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how outcome ids are minted (default UUIDv4).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires the quota flows. ev and qs may be nil for callers that only
// register and log in.
func NewService(store ledger.Store, cfg settings.Store, qs Questions, ev Evaluator, opts ...Option) (*Service, error) {
	s := &Service{
		ledger:    store,
		settings:  cfg,
		questions: qs,
		evaluator: ev,
		publisher: nopPublisher{},
		observer:  nopObserver{},
		groups:    RandomGroupPolicy{ProbabilityA: 0.5},
		passwords: password.DefaultConfig(),
		log:       slog.Default(),
		now:       time.Now,
		newID:     newOutcomeID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	h, err := s.passwords.Hash("dummy-password")
	if err != nil {
		return nil, err
	}
	s.dummyHash = h

	return s, nil
}
