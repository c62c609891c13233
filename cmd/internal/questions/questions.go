// Package questions is the interview question bank.
package questions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no question matches.
var ErrNotFound = errors.New("question not found")

// Question is one interview prompt plus the reference excerpt used for scoring.
type Question struct {
	ID            string    `json:"id"`
	QuestionText  string    `json:"questionText"`
	ReferenceText string    `json:"referenceText"`
	Chapter       string    `json:"chapter"`
	Section       string    `json:"section"`
	Category      string    `json:"category"`
	Difficulty    string    `json:"difficulty"`
	Tip           *string   `json:"tip,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store reads the question bank.
type Store interface {
	// Random returns a uniformly random question whose ID is not in exclude.
	Random(ctx context.Context, exclude []string) (Question, error)
	Get(ctx context.Context, id string) (Question, error)
}
