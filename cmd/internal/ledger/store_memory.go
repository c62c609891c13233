package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in dev mode and tests.
//
// One mutex guards all state. Inside InTx every write records its inverse, and
// the log is replayed backwards when fn fails or panics.
type MemoryStore struct {
	mu      sync.Mutex
	state   *memState
	newCode CodeGenerator
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryCodeGenerator overrides the referral code generator.
func WithMemoryCodeGenerator(gen CodeGenerator) MemoryOption {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		state:   newMemState(),
		newCode: NewReferralCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type memState struct {
	accounts  map[string]Account
	byEmail   map[string]string
	byCode    map[string]string
	referrals map[string]ReferralRecord // keyed by referred email
	answers   map[string]Answer
}

func newMemState() *memState {
	return &memState{
		accounts:  make(map[string]Account),
		byEmail:   make(map[string]string),
		byCode:    make(map[string]string),
		referrals: make(map[string]ReferralRecord),
		answers:   make(map[string]Answer),
	}
}

// InTx runs fn under the store lock and undoes its writes unless fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.state, newCode: s.newCode, tracking: true}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MemoryStore) do(fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{st: s.state, newCode: s.newCode})
}

func (s *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	var out Account
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.CreateAccount(ctx, in)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (Account, error) {
	var out Account
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.GetAccount(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	var out Account
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.GetAccountByEmail(ctx, email)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetAccountByReferralCode(ctx context.Context, code string) (Account, error) {
	var out Account
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.GetAccountByReferralCode(ctx, code)
		return err
	})
	return out, err
}

func (s *MemoryStore) AdjustQuestionsAvailable(ctx context.Context, accountID string, delta int) (int, error) {
	var n int
	err := s.do(func(tx *memTx) (err error) {
		n, err = tx.AdjustQuestionsAvailable(ctx, accountID, delta)
		return err
	})
	return n, err
}

func (s *MemoryStore) ConsumeQuestion(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.do(func(tx *memTx) (err error) {
		n, err = tx.ConsumeQuestion(ctx, accountID)
		return err
	})
	return n, err
}

func (s *MemoryStore) RecordCompletion(ctx context.Context, accountID string, scoreDelta float64) error {
	return s.do(func(tx *memTx) error {
		return tx.RecordCompletion(ctx, accountID, scoreDelta)
	})
}

func (s *MemoryStore) SetPasswordHash(ctx context.Context, accountID, hash string) error {
	return s.do(func(tx *memTx) error {
		return tx.SetPasswordHash(ctx, accountID, hash)
	})
}

func (s *MemoryStore) RecordReferral(ctx context.Context, referrerID, referredEmail string) (ReferralRecord, error) {
	var out ReferralRecord
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.RecordReferral(ctx, referrerID, referredEmail)
		return err
	})
	return out, err
}

func (s *MemoryStore) MarkBonusGranted(ctx context.Context, referrerID, referredEmail string) error {
	return s.do(func(tx *memTx) error {
		return tx.MarkBonusGranted(ctx, referrerID, referredEmail)
	})
}

func (s *MemoryStore) CountGrantedReferrals(ctx context.Context, referrerID string) (int, error) {
	var n int
	err := s.do(func(tx *memTx) (err error) {
		n, err = tx.CountGrantedReferrals(ctx, referrerID)
		return err
	})
	return n, err
}

func (s *MemoryStore) SaveAnswer(ctx context.Context, a Answer) (bool, error) {
	var saved bool
	err := s.do(func(tx *memTx) (err error) {
		saved, err = tx.SaveAnswer(ctx, a)
		return err
	})
	return saved, err
}

func (s *MemoryStore) ListAnswers(ctx context.Context, accountID string) ([]Answer, error) {
	var out []Answer
	err := s.do(func(tx *memTx) (err error) {
		out, err = tx.ListAnswers(ctx, accountID)
		return err
	})
	return out, err
}

// memTx operates on a state the caller has exclusive access to.
type memTx struct {
	st      *memState
	newCode CodeGenerator

	// tracking is set inside InTx; undo then holds one inverse per write.
	tracking bool
	undo     []func()
}

// put writes m[k] = v, logging the previous entry when t is tracking.
func put[K comparable, V any](t *memTx, m map[K]V, k K, v V) {
	if t.tracking {
		prev, had := m[k]
		t.undo = append(t.undo, func() {
			if had {
				m[k] = prev
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "ledger.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if in.Email == "" {
		return Account{}, opErr(op, ErrInvalidInput, "email is required")
	}
	if in.Group == "" {
		return Account{}, opErr(op, ErrInvalidInput, "group is required")
	}
	if in.QuestionsAvailable < 0 {
		return Account{}, opErr(op, ErrInvalidInput, "negative starting quota")
	}
	if _, ok := t.st.byEmail[in.Email]; ok {
		return Account{}, opErr(op, ErrDuplicateEmail, "")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := t.newCode()
		if err != nil {
			return Account{}, err
		}
		if _, taken := t.st.byCode[code]; taken {
			continue
		}

		a := Account{
			ID:                 id,
			Email:              in.Email,
			PasswordHash:       in.PasswordHash,
			Group:              in.Group,
			ReferralCode:       code,
			QuestionsAvailable: in.QuestionsAvailable,
			CreatedAt:          now,
		}
		put(t, t.st.accounts, id, a)
		put(t, t.st.byEmail, a.Email, id)
		put(t, t.st.byCode, code, id)
		return a, nil
	}

	return Account{}, opErr(op, ErrCodeGenerationExhausted, "")
}

func (t *memTx) GetAccount(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	a, ok := t.st.accounts[id]
	if !ok {
		return Account{}, opErr("ledger.GetAccount", ErrNotFound, "")
	}
	return a, nil
}

func (t *memTx) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	id, ok := t.st.byEmail[email]
	if !ok {
		return Account{}, opErr("ledger.GetAccountByEmail", ErrNotFound, "")
	}
	return t.st.accounts[id], nil
}

func (t *memTx) GetAccountByReferralCode(ctx context.Context, code string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	id, ok := t.st.byCode[code]
	if !ok {
		return Account{}, opErr("ledger.GetAccountByReferralCode", ErrNotFound, "")
	}
	return t.st.accounts[id], nil
}

func (t *memTx) AdjustQuestionsAvailable(ctx context.Context, accountID string, delta int) (int, error) {
	const op = "ledger.AdjustQuestionsAvailable"

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, opErr(op, ErrNotFound, "")
	}
	if a.QuestionsAvailable+delta < 0 {
		return 0, opErr(op, ErrQuotaExhausted, "")
	}
	a.QuestionsAvailable += delta
	put(t, t.st.accounts, accountID, a)
	return a.QuestionsAvailable, nil
}

func (t *memTx) ConsumeQuestion(ctx context.Context, accountID string) (int, error) {
	const op = "ledger.ConsumeQuestion"

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, opErr(op, ErrNotFound, "")
	}
	if a.QuestionsAvailable <= 0 {
		return 0, opErr(op, ErrQuotaExhausted, "")
	}
	a.QuestionsAvailable--
	put(t, t.st.accounts, accountID, a)
	return a.QuestionsAvailable, nil
}

func (t *memTx) RecordCompletion(ctx context.Context, accountID string, scoreDelta float64) error {
	const op = "ledger.RecordCompletion"

	if err := ctx.Err(); err != nil {
		return err
	}
	if scoreDelta < 0 {
		return opErr(op, ErrInvalidInput, "negative score")
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return opErr(op, ErrNotFound, "")
	}
	a.QuestionsCompleted++
	a.TotalScore += scoreDelta
	put(t, t.st.accounts, accountID, a)
	return nil
}

func (t *memTx) SetPasswordHash(ctx context.Context, accountID, hash string) error {
	const op = "ledger.SetPasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return opErr(op, ErrInvalidInput, "empty hash")
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return opErr(op, ErrNotFound, "")
	}
	a.PasswordHash = hash
	put(t, t.st.accounts, accountID, a)
	return nil
}

func (t *memTx) RecordReferral(ctx context.Context, referrerID, referredEmail string) (ReferralRecord, error) {
	const op = "ledger.RecordReferral"

	if err := ctx.Err(); err != nil {
		return ReferralRecord{}, err
	}
	if referrerID == "" || referredEmail == "" {
		return ReferralRecord{}, opErr(op, ErrInvalidInput, "referrer and referred email are required")
	}
	if _, ok := t.st.accounts[referrerID]; !ok {
		return ReferralRecord{}, opErr(op, ErrNotFound, "referrer")
	}
	if _, ok := t.st.referrals[referredEmail]; ok {
		return ReferralRecord{}, opErr(op, ErrDuplicateReferral, "")
	}

	now := time.Now().UTC()
	id, err := NewULID(now)
	if err != nil {
		return ReferralRecord{}, err
	}
	rec := ReferralRecord{
		ID:            id,
		ReferrerID:    referrerID,
		ReferredEmail: referredEmail,
		CreatedAt:     now,
	}
	put(t, t.st.referrals, referredEmail, rec)
	return rec, nil
}

func (t *memTx) MarkBonusGranted(ctx context.Context, referrerID, referredEmail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := t.st.referrals[referredEmail]
	if !ok || rec.ReferrerID != referrerID {
		return opErr("ledger.MarkBonusGranted", ErrNotFound, "")
	}
	rec.BonusGranted = true
	put(t, t.st.referrals, referredEmail, rec)
	return nil
}

func (t *memTx) CountGrantedReferrals(ctx context.Context, referrerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range t.st.referrals {
		if rec.ReferrerID == referrerID && rec.BonusGranted {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SaveAnswer(ctx context.Context, a Answer) (bool, error) {
	const op = "ledger.SaveAnswer"

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.ID == "" || a.AccountID == "" || a.QuestionID == "" {
		return false, opErr(op, ErrInvalidInput, "id, account and question are required")
	}
	if _, ok := t.st.accounts[a.AccountID]; !ok {
		return false, opErr(op, ErrNotFound, "account or question")
	}
	if _, ok := t.st.answers[a.ID]; ok {
		return false, nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	put(t, t.st.answers, a.ID, a)
	return true, nil
}

func (t *memTx) ListAnswers(ctx context.Context, accountID string) ([]Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Answer, 0, 16)
	for _, a := range t.st.answers {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
