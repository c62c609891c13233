package ledger

import (
	"context"
	"time"
)

// Account is a registered user and its quota/score state.
type Account struct {
	ID                 string
	Email              string
	PasswordHash       string
	Group              string
	ReferralCode       string
	QuestionsAvailable int
	QuestionsCompleted int
	TotalScore         float64
	CreatedAt          time.Time
}

// ReferralRecord links a referrer to the e-mail it referred.
type ReferralRecord struct {
	ID            string
	ReferrerID    string
	ReferredEmail string
	BonusGranted  bool
	CreatedAt     time.Time
}

// Feedback is the stored part of an answer evaluation.
type Feedback struct {
	PositiveComment    string  `json:"positiveComment"`
	ImprovementComment string  `json:"improvementComment"`
	StructureScore     float64 `json:"structureScore"`
	ContentScore       float64 `json:"contentScore"`
	CommunicationScore float64 `json:"communicationScore"`
}

// Answer is a scored submission. ID doubles as the outcome idempotency key.
type Answer struct {
	ID         string
	AccountID  string
	QuestionID string
	Answer     string
	Score      float64
	Feedback   Feedback
	CreatedAt  time.Time
}

// CreateAccountInput describes a new account. The referral code is generated by the store.
type CreateAccountInput struct {
	Email              string
	Group              string
	PasswordHash       string
	QuestionsAvailable int
	Now                time.Time
}

// Accounts is the account ledger.
type Accounts interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (Account, error)

	// AdjustQuestionsAvailable adds delta and returns the new value.
	// A negative delta that would leave the counter below zero fails with ErrQuotaExhausted.
	AdjustQuestionsAvailable(ctx context.Context, accountID string, delta int) (int, error)

	// ConsumeQuestion is a single check-and-decrement. Returns the remaining quota.
	ConsumeQuestion(ctx context.Context, accountID string) (int, error)

	RecordCompletion(ctx context.Context, accountID string, scoreDelta float64) error

	// SetPasswordHash replaces the stored hash (rehash on login).
	SetPasswordHash(ctx context.Context, accountID, hash string) error
}

// Referrals is the referral ledger.
type Referrals interface {
	RecordReferral(ctx context.Context, referrerID, referredEmail string) (ReferralRecord, error)
	MarkBonusGranted(ctx context.Context, referrerID, referredEmail string) error
	CountGrantedReferrals(ctx context.Context, referrerID string) (int, error)
}

// Answers stores scored submissions.
type Answers interface {
	// SaveAnswer inserts a; it reports false when an answer with the same ID already exists.
	SaveAnswer(ctx context.Context, a Answer) (bool, error)
	ListAnswers(ctx context.Context, accountID string) ([]Answer, error)
}

// Tx is the set of ledger operations available inside a unit of work.
type Tx interface {
	Accounts
	Referrals
	Answers
}

// Store exposes the ledgers directly (each call atomic on its own) and
// InTx for multi-step flows that must commit or roll back together.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
