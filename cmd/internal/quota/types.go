package quota

import (
	"time"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/scoring"
)

// FreeBaseline is granted to every account on top of the group's login_questions.
const FreeBaseline = 3

type RegisterInput struct {
	Email        string
	ReferralCode string
}

// Registration carries the new account and its one-time plaintext password.
type Registration struct {
	Account  ledger.Account
	Password string

	// ReferralApplied is true when ReferralCode credited a referrer.
	ReferralApplied bool
}

// Outcome is a scored answer waiting to be recorded. ID is its idempotency key.
type Outcome struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"accountId"`
	QuestionID string             `json:"questionId"`
	Answer     string             `json:"answer"`
	Evaluation scoring.Evaluation `json:"evaluation"`
	CreatedAt  time.Time          `json:"createdAt"`
	Attempts   int                `json:"attempts"`
}

func (o Outcome) answer() ledger.Answer {
	e := o.Evaluation
	return ledger.Answer{
		ID:         o.ID,
		AccountID:  o.AccountID,
		QuestionID: o.QuestionID,
		Answer:     o.Answer,
		Score:      e.Score,
		Feedback: ledger.Feedback{
			PositiveComment:    e.PositiveComment,
			ImprovementComment: e.ImprovementComment,
			StructureScore:     e.StructureScore,
			ContentScore:       e.ContentScore,
			CommunicationScore: e.CommunicationScore,
		},
		CreatedAt: o.CreatedAt,
	}
}

type SubmitInput struct {
	AccountID  string
	QuestionID string
	Answer     string
}

type SubmitResult struct {
	Evaluation         scoring.Evaluation
	Answer             ledger.Answer
	Question           questions.Question
	QuestionsRemaining int

	// Pending is true when recording was deferred to the outbox.
	Pending bool
}

type ReferralStats struct {
	TotalReferrals  int `json:"totalReferrals"`
	QuestionsEarned int `json:"questionsEarned"`
}

type Progress struct {
	QuestionsCompleted int     `json:"questionsCompleted"`
	QuestionsAvailable int     `json:"questionsAvailable"`
	TotalScore         float64 `json:"totalScore"`
	AverageScore       float64 `json:"averageScore"`
}
