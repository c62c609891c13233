package quota

import (
	"context"

	"github.com/shopspring/decimal"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/settings"
)

// GetReferralStats is computed at the referrer's current bonus rate, so a
// config change re-prices past referrals. An unknown account gets the built-in rate.
func (s *Service) GetReferralStats(ctx context.Context, accountID string) (ReferralStats, error) {
	n, err := s.ledger.CountGrantedReferrals(ctx, accountID)
	if err != nil {
		return ReferralStats{}, err
	}

	rate := settings.Default(settings.KeyReferralBonusExisting)
	acct, err := s.ledger.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		rate = s.settings.GetConfigValue(ctx, settings.KeyReferralBonusExisting, acct.Group)
	case !ledger.IsNotFound(err):
		return ReferralStats{}, err
	}

	return ReferralStats{TotalReferrals: n, QuestionsEarned: n * rate}, nil
}

func (s *Service) GetProgress(ctx context.Context, accountID string) (Progress, error) {
	acct, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return Progress{}, err
	}
	answers, err := s.ledger.ListAnswers(ctx, accountID)
	if err != nil {
		return Progress{}, err
	}

	return Progress{
		QuestionsCompleted: acct.QuestionsCompleted,
		QuestionsAvailable: acct.QuestionsAvailable,
		TotalScore:         acct.TotalScore,
		AverageScore:       averageScore(answers),
	}, nil
}

// averageScore is the mean answer score rounded to one decimal.
func averageScore(answers []ledger.Answer) float64 {
	if len(answers) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, a := range answers {
		sum = sum.Add(decimal.NewFromFloat(a.Score))
	}
	return sum.Div(decimal.NewFromInt(int64(len(answers)))).Round(1).InexactFloat64()
}

// ListAnswers returns the account's answers, newest first.
func (s *Service) ListAnswers(ctx context.Context, accountID string) ([]ledger.Answer, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.ListAnswers(ctx, accountID)
}
