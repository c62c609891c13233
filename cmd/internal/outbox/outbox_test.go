package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/quota"
	"interviewprep/cmd/internal/scoring"
)

type replayFunc func(ctx context.Context, o quota.Outcome) (int, error)

func (f replayFunc) ReplayOutcome(ctx context.Context, o quota.Outcome) (int, error) { return f(ctx, o) }

type countingObserver struct {
	mu      sync.Mutex
	results map[string]int
	depth   int
}

func (c *countingObserver) Replayed(r string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[r]++
}

func (c *countingObserver) Depth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth = n
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func outcome(id string) quota.Outcome {
	return quota.Outcome{ID: id, AccountID: "acc", QuestionID: "q", Answer: "answer text", Evaluation: scoring.DefaultEvaluation()}
}

func TestMemoryQueue_LeaseFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	for i := range 3 {
		if err := q.Push(ctx, outcome(fmt.Sprint(i))); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Fatalf("len = %d", n)
	}
	for i := range 3 {
		l, ok, err := q.Pop(ctx)
		if err != nil || !ok || l.Outcome.ID != fmt.Sprint(i) {
			t.Fatalf("pop #%d: %+v %v %v", i, l, ok, err)
		}
		if err := q.Ack(ctx, l); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
	if _, ok, err := q.Pop(ctx); ok || err != nil {
		t.Fatalf("pop on empty: ok=%v err=%v", ok, err)
	}
	if n, _ := q.Recover(ctx); n != 0 {
		t.Fatalf("acked leases recovered: %d", n)
	}
}

func TestMemoryQueue_RecoverKeepsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()
	for _, id := range []string{"a", "b", "c"} {
		_ = q.Push(ctx, outcome(id))
	}

	// Two leases outstanding, as if the process died mid-replay.
	_, _, _ = q.Pop(ctx)
	_, _, _ = q.Pop(ctx)
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("len with leases out = %d", n)
	}

	n, err := q.Recover(ctx)
	if err != nil || n != 2 {
		t.Fatalf("recover = %d, %v", n, err)
	}
	for _, want := range []string{"a", "b", "c"} {
		l, ok, _ := q.Pop(ctx)
		if !ok || l.Outcome.ID != want {
			t.Fatalf("pop = %+v, want %s", l.Outcome, want)
		}
	}
}

func TestMemoryQueue_RetryAndBury(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()
	_ = q.Push(ctx, outcome("x"))
	_ = q.Push(ctx, outcome("y"))

	l, _, _ := q.Pop(ctx)
	l.Outcome.Attempts = 4
	if err := q.Retry(ctx, l); err != nil {
		t.Fatalf("retry: %v", err)
	}
	// A settled lease cannot be settled twice.
	_ = q.Bury(ctx, l)
	if n, _ := q.DeadLen(ctx); n != 0 {
		t.Fatalf("settled lease buried: %d", n)
	}

	y, _, _ := q.Pop(ctx)
	if y.Outcome.ID != "y" {
		t.Fatalf("pop = %s, want y", y.Outcome.ID)
	}
	_ = q.Bury(ctx, y)

	x, _, _ := q.Pop(ctx)
	if x.Outcome.ID != "x" || x.Outcome.Attempts != 4 {
		t.Fatalf("retried = %+v", x.Outcome)
	}
	if n, _ := q.DeadLen(ctx); n != 1 {
		t.Fatalf("dead = %d", n)
	}
}

func TestScheduler_Drain(t *testing.T) {
	t.Parallel()
	transient := errors.New("connection refused")

	tests := []struct {
		name         string
		replay       func(o quota.Outcome) error
		wantRecorded int
		wantLeft     int
		wantResults  map[string]int
	}{
		{
			name:         "all recorded",
			replay:       func(quota.Outcome) error { return nil },
			wantRecorded: 3,
			wantResults:  map[string]int{ResultOK: 3},
		},
		{
			name:        "exhausted dropped",
			replay:      func(quota.Outcome) error { return ledger.ErrQuotaExhausted },
			wantResults: map[string]int{ResultDropped: 3},
		},
		{
			name: "transient stops tick",
			replay: func(o quota.Outcome) error {
				if o.ID == "1" {
					return transient
				}
				return nil
			},
			wantRecorded: 1,
			wantLeft:     2,
			wantResults:  map[string]int{ResultOK: 1, ResultRetry: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			q := NewMemoryQueue()
			for i := range 3 {
				_ = q.Push(ctx, outcome(fmt.Sprint(i)))
			}
			obs := &countingObserver{}
			s := NewScheduler(Config{Batch: 10, MaxAttempts: 5}, q,
				replayFunc(func(_ context.Context, o quota.Outcome) (int, error) { return 0, tt.replay(o) }),
				WithLogger(quiet()), WithObserver(obs))

			if got := s.Drain(ctx); got != tt.wantRecorded {
				t.Fatalf("recorded = %d, want %d", got, tt.wantRecorded)
			}
			if n, _ := q.Len(ctx); n != tt.wantLeft {
				t.Fatalf("left = %d, want %d", n, tt.wantLeft)
			}
			if obs.depth != tt.wantLeft {
				t.Fatalf("depth = %d", obs.depth)
			}
			for k, v := range tt.wantResults {
				if obs.results[k] != v {
					t.Fatalf("results = %v, want %v", obs.results, tt.wantResults)
				}
			}
		})
	}
}

func TestScheduler_BuriesAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()
	_ = q.Push(ctx, outcome("stuck"))

	obs := &countingObserver{}
	s := NewScheduler(Config{Batch: 1, MaxAttempts: 3}, q,
		replayFunc(func(context.Context, quota.Outcome) (int, error) { return 0, errors.New("down") }),
		WithLogger(quiet()), WithObserver(obs))

	for range 3 {
		s.Drain(ctx)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("outcome still queued after max attempts: %d", n)
	}
	if n, _ := q.DeadLen(ctx); n != 1 {
		t.Fatalf("dead = %d, want 1", n)
	}
	if obs.results[ResultRetry] != 2 || obs.results[ResultDead] != 1 {
		t.Fatalf("results = %v", obs.results)
	}
}

// failingRetryQueue loses its connection whenever a lease is handed back.
type failingRetryQueue struct {
	*MemoryQueue
}

func (failingRetryQueue) Retry(context.Context, Lease) error {
	return errors.New("connection reset")
}

func TestScheduler_FailedRequeueKeepsLease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemoryQueue()
	_ = mem.Push(ctx, outcome("fragile"))

	s := NewScheduler(Config{Batch: 1, MaxAttempts: 5}, failingRetryQueue{mem},
		replayFunc(func(context.Context, quota.Outcome) (int, error) { return 0, errors.New("db down") }),
		WithLogger(quiet()))
	s.Drain(ctx)

	if n, _ := mem.Len(ctx); n != 0 {
		t.Fatalf("pending = %d", n)
	}
	n, err := mem.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recover = %d, %v; outcome was lost", n, err)
	}
	l, ok, _ := mem.Pop(ctx)
	if !ok || l.Outcome.ID != "fragile" {
		t.Fatalf("recovered = %+v", l.Outcome)
	}
}

func TestScheduler_StartRecoversOrphanedLeases(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	_ = q.Push(ctx, outcome("orphan"))
	// The previous process leased the outcome and died before acknowledging it.
	if _, ok, _ := q.Pop(ctx); !ok {
		t.Fatalf("pop failed")
	}

	done := make(chan string, 1)
	s := NewScheduler(Config{Interval: 20 * time.Millisecond}, q,
		replayFunc(func(_ context.Context, o quota.Outcome) (int, error) {
			select {
			case done <- o.ID:
			default:
			}
			return 0, nil
		}),
		WithLogger(quiet()))

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	select {
	case id := <-done:
		if id != "orphan" {
			t.Fatalf("replayed %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("orphaned outcome was not replayed")
	}
}

func TestScheduler_BatchLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()
	for i := range 5 {
		_ = q.Push(ctx, outcome(fmt.Sprint(i)))
	}

	s := NewScheduler(Config{Batch: 2}, q,
		replayFunc(func(context.Context, quota.Outcome) (int, error) { return 0, nil }),
		WithLogger(quiet()))
	if got := s.Drain(ctx); got != 2 {
		t.Fatalf("recorded = %d", got)
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Fatalf("left = %d", n)
	}
}

func TestScheduler_StartDrainsOnInterval(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	_ = q.Push(ctx, outcome("tick"))

	done := make(chan string, 1)
	s := NewScheduler(Config{Interval: 20 * time.Millisecond}, q,
		replayFunc(func(_ context.Context, o quota.Outcome) (int, error) {
			select {
			case done <- o.ID:
			default:
			}
			return 0, nil
		}),
		WithLogger(quiet()))

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	select {
	case id := <-done:
		if id != "tick" {
			t.Fatalf("replayed %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("outcome was not replayed")
	}
}

func TestRedisQueue_Integration(t *testing.T) {
	url := os.Getenv("PREP_REDIS_URL")
	if url == "" {
		t.Skip("PREP_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(url)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer func() { _ = client.Close() }()
	if err := Ping(ctx, client); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	key := fmt.Sprintf("prep:test:outbox:%d", time.Now().UnixNano())
	q := NewRedisQueue(client, key)
	t.Cleanup(func() { _ = client.Del(context.Background(), q.key, q.processing, q.dead).Err() })

	want := outcome("r1")
	want.Attempts = 2
	if err := q.Push(ctx, want); err != nil {
		t.Fatalf("push: %v", err)
	}
	_ = q.Push(ctx, outcome("r2"))
	_ = q.Push(ctx, outcome("r3"))

	if n, err := q.Len(ctx); err != nil || n != 3 {
		t.Fatalf("len = %d, %v", n, err)
	}

	got, ok, err := q.Pop(ctx)
	if err != nil || !ok || got.Outcome.ID != "r1" || got.Outcome.Attempts != 2 || got.Outcome.Evaluation != want.Evaluation {
		t.Fatalf("pop = %+v %v %v", got, ok, err)
	}
	if n, _ := client.LLen(ctx, q.processing).Result(); n != 1 {
		t.Fatalf("processing = %d, want the leased outcome", n)
	}
	if err := q.Ack(ctx, got); err != nil {
		t.Fatalf("ack: %v", err)
	}

	// r2 is leased and never settled: a crash. r3 is retried, then buried.
	if l, ok, _ := q.Pop(ctx); !ok || l.Outcome.ID != "r2" {
		t.Fatalf("pop r2 = %+v", l)
	}
	r3, _, _ := q.Pop(ctx)
	r3.Outcome.Attempts++
	if err := q.Retry(ctx, r3); err != nil {
		t.Fatalf("retry: %v", err)
	}

	n, err := q.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recover = %d, %v", n, err)
	}
	l, ok, _ := q.Pop(ctx)
	if !ok || l.Outcome.ID != "r2" {
		t.Fatalf("recovered lease not first: %+v", l.Outcome)
	}
	_ = q.Ack(ctx, l)

	l, ok, _ = q.Pop(ctx)
	if !ok || l.Outcome.ID != "r3" || l.Outcome.Attempts != 1 {
		t.Fatalf("retried = %+v", l.Outcome)
	}
	if err := q.Bury(ctx, l); err != nil {
		t.Fatalf("bury: %v", err)
	}
	if n, _ := q.DeadLen(ctx); n != 1 {
		t.Fatalf("dead = %d", n)
	}
	if n, _ := client.LLen(ctx, q.processing).Result(); n != 0 {
		t.Fatalf("processing not empty: %d", n)
	}

	// Undecodable entries go straight to the dead-letter list.
	_ = client.LPush(ctx, q.key, "{not json").Err()
	if _, ok, err := q.Pop(ctx); ok || err == nil {
		t.Fatalf("corrupt pop: ok=%v err=%v", ok, err)
	}
	if n, _ := q.DeadLen(ctx); n != 2 {
		t.Fatalf("dead = %d, want 2", n)
	}
	if _, ok, err := q.Pop(ctx); ok || err != nil {
		t.Fatalf("pop on empty: ok=%v err=%v", ok, err)
	}
}
