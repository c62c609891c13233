package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/quota"
)

// Replayer records a queued outcome. *quota.Service implements it.
type Replayer interface {
	ReplayOutcome(ctx context.Context, o quota.Outcome) (int, error)
}

// Replay results reported to Observer.
const (
	ResultOK      = "ok"
	ResultDropped = "dropped"
	ResultRetry   = "retry"
	ResultDead    = "dead_lettered"
)

// Observer receives replay events for metrics.
type Observer interface {
	Replayed(result string)
	Depth(n int)
}

type nopObserver struct{}

func (nopObserver) Replayed(string) {}
func (nopObserver) Depth(int)       {}

type Config struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Batch: 50, MaxAttempts: 20}
}

// Scheduler drains the queue through a Replayer on a fixed interval.
type Scheduler struct {
	cfg      Config
	queue    Queue
	replayer Replayer
	log      *slog.Logger
	observer Observer

	sched gocron.Scheduler
}

type SchedulerOption func(*Scheduler)

func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewScheduler(cfg Config, q Queue, r Replayer, opts ...SchedulerOption) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = def.Batch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	s := &Scheduler{
		cfg:      cfg,
		queue:    q,
		replayer: r,
		log:      slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start registers the replay job and starts the scheduler. ctx bounds each tick.
// Leases orphaned by a previous process are recovered first.
func (s *Scheduler) Start(ctx context.Context) error {
	n, err := s.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Warn("outbox.recovered", "outcomes", n)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() {
			s.Drain(ctx)
		}),
		gocron.WithName("outbox.replay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}

	sched.Start()
	s.sched = sched
	s.log.Info("outbox.start", "interval", s.cfg.Interval.String(), "batch", s.cfg.Batch)
	return nil
}

// Shutdown stops the scheduler and waits for a running tick.
func (s *Scheduler) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// Drain replays up to Batch outcomes. A transient failure returns the outcome
// to the queue and ends the tick. It returns how many outcomes were recorded.
func (s *Scheduler) Drain(ctx context.Context) int {
	recorded := 0
	defer func() {
		if n, err := s.queue.Len(ctx); err == nil {
			s.observer.Depth(n)
		}
	}()

	for range s.cfg.Batch {
		if ctx.Err() != nil {
			return recorded
		}

		l, ok, err := s.queue.Pop(ctx)
		if err != nil {
			s.log.Error("outbox.pop.fail", "err", err)
			return recorded
		}
		if !ok {
			return recorded
		}
		o := l.Outcome

		_, err = s.replayer.ReplayOutcome(ctx, o)
		switch {
		case err == nil:
			recorded++
			s.observer.Replayed(ResultOK)
			s.log.Info("outbox.replay.ok", "outcome_id", o.ID, "attempts", o.Attempts+1)
			s.ack(ctx, l)

		case ledger.IsQuotaExhausted(err):
			s.observer.Replayed(ResultDropped)
			s.log.Warn("outbox.replay.exhausted", "outcome_id", o.ID, "account_id", o.AccountID)
			s.ack(ctx, l)

		case ledger.IsNotFound(err):
			s.observer.Replayed(ResultDropped)
			s.log.Warn("outbox.replay.orphaned", "outcome_id", o.ID, "account_id", o.AccountID)
			s.ack(ctx, l)

		default:
			l.Outcome.Attempts++
			if l.Outcome.Attempts >= s.cfg.MaxAttempts {
				s.observer.Replayed(ResultDead)
				s.log.Error("outbox.replay.give_up", "outcome_id", o.ID, "attempts", l.Outcome.Attempts, "err", err)
				if berr := s.queue.Bury(ctx, l); berr != nil {
					s.log.Error("outbox.bury.fail", "outcome_id", o.ID, "err", berr)
				}
				continue
			}
			s.observer.Replayed(ResultRetry)
			s.log.Warn("outbox.replay.fail", "outcome_id", o.ID, "attempts", l.Outcome.Attempts, "err", err)
			if rerr := s.queue.Retry(ctx, l); rerr != nil {
				// The lease stays outstanding and comes back through Recover.
				s.log.Error("outbox.requeue.fail", "outcome_id", o.ID, "err", rerr)
			}
			return recorded
		}
	}
	return recorded
}

// ack releases a settled lease. On failure the outcome is replayed again after
// the next Recover, which the idempotent replay absorbs.
func (s *Scheduler) ack(ctx context.Context, l Lease) {
	if err := s.queue.Ack(ctx, l); err != nil {
		s.log.Error("outbox.ack.fail", "outcome_id", l.Outcome.ID, "err", err)
	}
}
