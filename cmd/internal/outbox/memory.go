package outbox

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"

	"interviewprep/cmd/internal/quota"
)

// MemoryQueue is a process-local Queue. Everything is lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []quota.Outcome
	leased map[uint64]quota.Outcome
	dead   []quota.Outcome
	seq    uint64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{leased: make(map[uint64]quota.Outcome)}
}

func (q *MemoryQueue) Push(ctx context.Context, o quota.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, o)
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Lease{}, false, nil
	}
	o := q.items[0]
	q.items[0] = quota.Outcome{}
	q.items = q.items[1:]

	q.seq++
	q.leased[q.seq] = o
	return Lease{Outcome: o, ref: strconv.FormatUint(q.seq, 10)}, true, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, l Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.release(l)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, l Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.release(l) {
		q.items = append(q.items, l.Outcome)
	}
	return nil
}

func (q *MemoryQueue) Bury(ctx context.Context, l Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.release(l) {
		q.dead = append(q.dead, l.Outcome)
	}
	return nil
}

func (q *MemoryQueue) Recover(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	seqs := slices.Sorted(maps.Keys(q.leased))
	back := make([]quota.Outcome, 0, len(seqs)+len(q.items))
	for _, s := range seqs {
		back = append(back, q.leased[s])
		delete(q.leased, s)
	}
	q.items = append(back, q.items...)
	return len(seqs), nil
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// DeadLen counts buried outcomes.
func (q *MemoryQueue) DeadLen(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead), nil
}

// release drops l from the lease table and reports whether it was there.
func (q *MemoryQueue) release(l Lease) bool {
	s, err := strconv.ParseUint(l.ref, 10, 64)
	if err != nil {
		return false
	}
	if _, ok := q.leased[s]; !ok {
		return false
	}
	delete(q.leased, s)
	return true
}
