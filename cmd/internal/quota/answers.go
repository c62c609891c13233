package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/scoring"
)

func newOutcomeID() string { return uuid.NewString() }

// ConsumeQuestion takes one question from the account's quota.
func (s *Service) ConsumeQuestion(ctx context.Context, accountID string) (int, error) {
	n, err := s.ledger.ConsumeQuestion(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.publisher.PublishQuota(accountID, n)
	return n, nil
}

// RecordAnswerOutcome stores the answer, consumes one question and adds the
// score, all in one transaction. Replaying an already stored outcome is a no-op.
//
// ErrQuotaExhausted and ErrNotFound are returned as is. Any other failure
// queues the outcome for replay and returns an error wrapping ErrOutcomeDeferred.
func (s *Service) RecordAnswerOutcome(ctx context.Context, o Outcome) (int, error) {
	remaining, err := s.ReplayOutcome(ctx, o)
	if err == nil || ledger.IsQuotaExhausted(err) || ledger.IsNotFound(err) {
		return remaining, err
	}

	if s.outbox == nil {
		return 0, err
	}
	if perr := s.outbox.Push(ctx, o); perr != nil {
		s.log.ErrorContext(ctx, "quota.outcome.enqueue_fail", "outcome_id", o.ID, "err", perr, "cause", err)
		return 0, errors.Join(err, perr)
	}

	s.log.WarnContext(ctx, "quota.outcome.deferred", "outcome_id", o.ID, "account_id", o.AccountID, "err", err)
	return 0, fmt.Errorf("%w: %w", ErrOutcomeDeferred, err)
}

// ReplayOutcome runs the recording transaction without the outbox fallback.
func (s *Service) ReplayOutcome(ctx context.Context, o Outcome) (int, error) {
	if o.ID == "" || o.AccountID == "" {
		return 0, ledger.OpError{Op: "quota.RecordAnswerOutcome", Kind: ledger.ErrInvalidInput, Msg: "outcome id and account id required"}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}

	var (
		remaining int
		fresh     bool
	)
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		saved, err := tx.SaveAnswer(ctx, o.answer())
		if err != nil {
			return err
		}
		fresh = saved
		if !saved {
			a, err := tx.GetAccount(ctx, o.AccountID)
			if err != nil {
				return err
			}
			remaining = a.QuestionsAvailable
			return nil
		}

		if remaining, err = tx.ConsumeQuestion(ctx, o.AccountID); err != nil {
			return err
		}
		return tx.RecordCompletion(ctx, o.AccountID, o.Evaluation.Score)
	})
	if err != nil {
		return 0, err
	}

	if fresh {
		s.publisher.PublishQuota(o.AccountID, remaining)
	}
	return remaining, nil
}

// SubmitAnswer scores an answer and records it against the account's quota.
func (s *Service) SubmitAnswer(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	acct, err := s.ledger.GetAccount(ctx, in.AccountID)
	if err != nil {
		return SubmitResult{}, err
	}
	if acct.QuestionsAvailable <= 0 {
		s.observer.Submitted(SubmitExhausted)
		return SubmitResult{}, ErrQuotaExhausted
	}

	if s.questions == nil {
		return SubmitResult{}, questions.ErrNotFound
	}
	q, err := s.questions.Get(ctx, in.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}

	ev := s.evaluate(ctx, scoring.Request{
		Question:  q.QuestionText,
		Answer:    in.Answer,
		Reference: q.ReferenceText,
	})

	o := Outcome{
		ID:         s.newID(),
		AccountID:  acct.ID,
		QuestionID: q.ID,
		Answer:     in.Answer,
		Evaluation: ev,
		CreatedAt:  s.now(),
	}
	res := SubmitResult{Evaluation: ev, Answer: o.answer(), Question: q}

	remaining, err := s.RecordAnswerOutcome(ctx, o)
	switch {
	case err == nil:
		res.QuestionsRemaining = remaining
		s.observer.Submitted(SubmitOK)
		return res, nil
	case errors.Is(err, ErrOutcomeDeferred):
		res.QuestionsRemaining = max(acct.QuestionsAvailable-1, 0)
		res.Pending = true
		s.observer.Submitted(SubmitDeferred)
		return res, nil
	case ledger.IsQuotaExhausted(err):
		s.observer.Submitted(SubmitExhausted)
		return SubmitResult{}, err
	default:
		return SubmitResult{}, err
	}
}

func (s *Service) evaluate(ctx context.Context, req scoring.Request) scoring.Evaluation {
	if s.evaluator == nil {
		return scoring.DefaultEvaluation()
	}
	return s.evaluator.Evaluate(ctx, req)
}
