// Package scoring turns a free-text interview answer into a numeric evaluation.
//
// Oracle implementations report failures; Evaluator is the single place where a
// failure degrades to DefaultEvaluation.
package scoring

import (
	"context"
	"errors"
)

// ErrScoringUnavailable wraps every oracle failure (transport, status, empty or malformed response).
var ErrScoringUnavailable = errors.New("scoring unavailable")

// Evaluation is the oracle's verdict. All scores are in [1,10] after Clamp.
type Evaluation struct {
	Score              float64 `json:"score"`
	PositiveComment    string  `json:"positiveComment"`
	ImprovementComment string  `json:"improvementComment"`
	StructureScore     float64 `json:"structureScore"`
	ContentScore       float64 `json:"contentScore"`
	CommunicationScore float64 `json:"communicationScore"`
}

// Request is one answer to evaluate.
type Request struct {
	Question  string
	Answer    string
	Reference string
}

// Oracle evaluates answers against an external service.
type Oracle interface {
	Evaluate(ctx context.Context, req Request) (Evaluation, error)
}

const (
	minScore = 1
	maxScore = 10
)

// Clamp bounds every score to [1,10].
func Clamp(e Evaluation) Evaluation {
	e.Score = clamp(e.Score)
	e.StructureScore = clamp(e.StructureScore)
	e.ContentScore = clamp(e.ContentScore)
	e.CommunicationScore = clamp(e.CommunicationScore)
	return e
}

func clamp(v float64) float64 {
	if v != v { // NaN
		return minScore
	}
	return min(max(v, minScore), maxScore)
}

// DefaultEvaluation is returned whenever the oracle cannot produce a verdict.
func DefaultEvaluation() Evaluation {
	return Evaluation{
		Score:              5,
		PositiveComment:    "Thank you for your response. We're having technical difficulties with the evaluation system, but we appreciate your effort.",
		ImprovementComment: "Please try again later when our evaluation system is fully operational.",
		StructureScore:     5,
		ContentScore:       5,
		CommunicationScore: 5,
	}
}
