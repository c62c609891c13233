package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// storeFactory builds a fresh, empty Store. gen may be nil for the default generator.
type storeFactory func(t *testing.T, gen CodeGenerator) Store

// runStoreContract exercises behavior both backends must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("CreateAccount", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		a, err := st.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Group: "A", PasswordHash: "h", QuestionsAvailable: 13})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if a.ID == "" || len(a.ReferralCode) != ReferralCodeLength {
			t.Fatalf("unexpected account: %+v", a)
		}
		if a.QuestionsAvailable != 13 || a.QuestionsCompleted != 0 || a.TotalScore != 0 {
			t.Fatalf("unexpected counters: %+v", a)
		}

		got, err := st.GetAccountByReferralCode(ctx, a.ReferralCode)
		if err != nil || got.ID != a.ID {
			t.Fatalf("by code: %+v %v", got, err)
		}
		got, err = st.GetAccountByEmail(ctx, "a@example.com")
		if err != nil || got.ID != a.ID {
			t.Fatalf("by email: %+v %v", got, err)
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		if _, err := st.CreateAccount(ctx, CreateAccountInput{Email: "dup@example.com", Group: "A", PasswordHash: "h"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := st.CreateAccount(ctx, CreateAccountInput{Email: "dup@example.com", Group: "B", PasswordHash: "h"})
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected ErrDuplicateEmail, got %v", err)
		}

		// Exact string match: a different case is a different e-mail.
		if _, err := st.CreateAccount(ctx, CreateAccountInput{Email: "DUP@example.com", Group: "A", PasswordHash: "h"}); err != nil {
			t.Fatalf("case variant: %v", err)
		}
	})

	t.Run("CodeCollisionRerolls", func(t *testing.T) {
		t.Parallel()
		codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
		var mu sync.Mutex
		gen := func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			c := codes[0]
			if len(codes) > 1 {
				codes = codes[1:]
			}
			return c, nil
		}
		st := newStore(t, gen)
		ctx := context.Background()

		first, err := st.CreateAccount(ctx, CreateAccountInput{Email: "one@example.com", Group: "A", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}
		second, err := st.CreateAccount(ctx, CreateAccountInput{Email: "two@example.com", Group: "A", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("create second: %v", err)
		}
		if first.ReferralCode != "AAAAAA" || second.ReferralCode != "BBBBBB" {
			t.Fatalf("codes = %q, %q", first.ReferralCode, second.ReferralCode)
		}
	})

	t.Run("CodeGenerationExhausted", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, func() (string, error) { return "ZZZZZZ", nil })
		ctx := context.Background()

		if _, err := st.CreateAccount(ctx, CreateAccountInput{Email: "z1@example.com", Group: "A", PasswordHash: "h"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := st.CreateAccount(ctx, CreateAccountInput{Email: "z2@example.com", Group: "A", PasswordHash: "h"})
		if !errors.Is(err, ErrCodeGenerationExhausted) {
			t.Fatalf("expected ErrCodeGenerationExhausted, got %v", err)
		}
	})

	t.Run("AdjustAndConsume", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		a, err := st.CreateAccount(ctx, CreateAccountInput{Email: "q@example.com", Group: "A", PasswordHash: "h", QuestionsAvailable: 1})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		n, err := st.AdjustQuestionsAvailable(ctx, a.ID, 10)
		if err != nil || n != 11 {
			t.Fatalf("adjust +10: n=%d err=%v", n, err)
		}
		if _, err := st.AdjustQuestionsAvailable(ctx, a.ID, -12); !errors.Is(err, ErrQuotaExhausted) {
			t.Fatalf("adjust below zero: %v", err)
		}
		n, err = st.AdjustQuestionsAvailable(ctx, a.ID, -10)
		if err != nil || n != 1 {
			t.Fatalf("adjust -10: n=%d err=%v", n, err)
		}

		n, err = st.ConsumeQuestion(ctx, a.ID)
		if err != nil || n != 0 {
			t.Fatalf("consume: n=%d err=%v", n, err)
		}
		if _, err := st.ConsumeQuestion(ctx, a.ID); !errors.Is(err, ErrQuotaExhausted) {
			t.Fatalf("expected ErrQuotaExhausted, got %v", err)
		}
		if _, err := st.ConsumeQuestion(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if err := st.RecordCompletion(ctx, a.ID, 7.5); err != nil {
			t.Fatalf("record completion: %v", err)
		}
		got, err := st.GetAccount(ctx, a.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.QuestionsAvailable != 0 || got.QuestionsCompleted != 1 || got.TotalScore != 7.5 {
			t.Fatalf("unexpected counters: %+v", got)
		}

		if err := st.SetPasswordHash(ctx, a.ID, "h2"); err != nil {
			t.Fatalf("set hash: %v", err)
		}
		if got, _ := st.GetAccount(ctx, a.ID); got.PasswordHash != "h2" {
			t.Fatalf("hash = %q", got.PasswordHash)
		}
		if err := st.SetPasswordHash(ctx, "missing", "h2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentConsume_LastQuestion", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		a, err := st.CreateAccount(ctx, CreateAccountInput{Email: "race@example.com", Group: "A", PasswordHash: "h", QuestionsAvailable: 1})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		const attempts = 8
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.ConsumeQuestion(ctx, a.ID)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		success := 0
		for err := range errs {
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrQuotaExhausted):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if success != 1 {
			t.Fatalf("expected exactly 1 success, got %d", success)
		}

		got, err := st.GetAccount(ctx, a.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.QuestionsAvailable != 0 {
			t.Fatalf("questions available = %d", got.QuestionsAvailable)
		}
	})

	t.Run("Referrals", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		ref, err := st.CreateAccount(ctx, CreateAccountInput{Email: "referrer@example.com", Group: "A", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		other, err := st.CreateAccount(ctx, CreateAccountInput{Email: "other@example.com", Group: "B", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		rec, err := st.RecordReferral(ctx, ref.ID, "new@example.com")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if rec.BonusGranted || rec.ReferrerID != ref.ID {
			t.Fatalf("unexpected record: %+v", rec)
		}

		// Global per e-mail, regardless of referrer.
		if _, err := st.RecordReferral(ctx, other.ID, "new@example.com"); !errors.Is(err, ErrDuplicateReferral) {
			t.Fatalf("expected ErrDuplicateReferral, got %v", err)
		}
		if _, err := st.RecordReferral(ctx, ref.ID, "NEW@example.com"); err != nil {
			t.Fatalf("case variant: %v", err)
		}

		n, err := st.CountGrantedReferrals(ctx, ref.ID)
		if err != nil || n != 0 {
			t.Fatalf("count before grant: n=%d err=%v", n, err)
		}
		for i := 0; i < 2; i++ {
			if err := st.MarkBonusGranted(ctx, ref.ID, "new@example.com"); err != nil {
				t.Fatalf("mark #%d: %v", i, err)
			}
		}
		n, err = st.CountGrantedReferrals(ctx, ref.ID)
		if err != nil || n != 1 {
			t.Fatalf("count after grant: n=%d err=%v", n, err)
		}
		if err := st.MarkBonusGranted(ctx, other.ID, "new@example.com"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("mark for wrong referrer: %v", err)
		}
	})

	t.Run("ConcurrentReferralCredits", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		ref, err := st.CreateAccount(ctx, CreateAccountInput{Email: "popular@example.com", Group: "A", PasswordHash: "h", QuestionsAvailable: 13})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// Each unit of work is what a referred registration does to the referrer.
		credit := func(email string) error {
			return st.InTx(ctx, func(ctx context.Context, tx Tx) error {
				r, err := tx.GetAccountByReferralCode(ctx, ref.ReferralCode)
				if err != nil {
					return err
				}
				if _, err := tx.RecordReferral(ctx, r.ID, email); err != nil {
					return err
				}
				if _, err := tx.AdjustQuestionsAvailable(ctx, r.ID, 10); err != nil {
					return err
				}
				return tx.MarkBonusGranted(ctx, r.ID, email)
			})
		}

		const distinct, sameEmail = 12, 4
		var wg sync.WaitGroup
		errs := make(chan error, distinct+sameEmail)
		for i := range distinct + sameEmail {
			email := fmt.Sprintf("friend%d@example.com", i)
			if i >= distinct {
				email = "twice@example.com"
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- credit(email)
			}()
		}
		wg.Wait()
		close(errs)

		ok, dup := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateReferral):
				dup++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != distinct+1 || dup != sameEmail-1 {
			t.Fatalf("ok=%d dup=%d", ok, dup)
		}

		got, err := st.GetAccount(ctx, ref.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if want := 13 + 10*ok; got.QuestionsAvailable != want {
			t.Fatalf("questions available = %d, want %d", got.QuestionsAvailable, want)
		}
		n, err := st.CountGrantedReferrals(ctx, ref.ID)
		if err != nil || n != ok {
			t.Fatalf("granted = %d, want %d (%v)", n, ok, err)
		}
	})

	t.Run("InTxRollsBack", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		ref, err := st.CreateAccount(ctx, CreateAccountInput{Email: "tx@example.com", Group: "A", PasswordHash: "h", QuestionsAvailable: 3})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		boom := errors.New("boom")
		err = st.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.RecordReferral(ctx, ref.ID, "rolled@example.com"); err != nil {
				return err
			}
			if _, err := tx.AdjustQuestionsAvailable(ctx, ref.ID, 10); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		got, err := st.GetAccount(ctx, ref.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.QuestionsAvailable != 3 {
			t.Fatalf("quota leaked from rolled back tx: %d", got.QuestionsAvailable)
		}
		if _, err := st.RecordReferral(ctx, ref.ID, "rolled@example.com"); err != nil {
			t.Fatalf("referral leaked from rolled back tx: %v", err)
		}
	})

	t.Run("Answers", func(t *testing.T) {
		t.Parallel()
		st := newStore(t, nil)
		ctx := context.Background()

		a, err := st.CreateAccount(ctx, CreateAccountInput{Email: "ans@example.com", Group: "A", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for i := 0; i < 3; i++ {
			saved, err := st.SaveAnswer(ctx, Answer{
				ID:         fmt.Sprintf("ans-%d", i),
				AccountID:  a.ID,
				QuestionID: testQuestionID,
				Answer:     "a long enough answer",
				Score:      float64(i + 5),
				Feedback:   Feedback{PositiveComment: "good", StructureScore: 6},
			})
			if err != nil || !saved {
				t.Fatalf("save #%d: saved=%v err=%v", i, saved, err)
			}
		}
		saved, err := st.SaveAnswer(ctx, Answer{ID: "ans-0", AccountID: a.ID, QuestionID: testQuestionID})
		if err != nil || saved {
			t.Fatalf("duplicate save: saved=%v err=%v", saved, err)
		}

		list, err := st.ListAnswers(ctx, a.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("len = %d", len(list))
		}
		if list[0].Feedback.PositiveComment != "good" || list[0].Feedback.StructureScore != 6 {
			t.Fatalf("feedback not round-tripped: %+v", list[0].Feedback)
		}
	})
}
