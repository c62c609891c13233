package api

import (
	"time"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/scoring"
)

type registerRequest struct {
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type submitRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	QuestionsAvailable int    `json:"questionsAvailable"`
	QuestionsCompleted *int   `json:"questionsCompleted,omitempty"`
	ReferralCode       string `json:"referralCode"`
	ABGroup            string `json:"abGroup"`
}

type registerResponse struct {
	User     userResponse `json:"user"`
	Password string       `json:"password"`
	Token    string       `json:"token"`
	// ExpiresAt is when Token stops being accepted.
	ExpiresAt time.Time `json:"expiresAt"`
}

type loginResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type answerResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	QuestionID string          `json:"questionId"`
	Answer     string          `json:"answer"`
	Score      float64         `json:"score"`
	Feedback   ledger.Feedback `json:"feedback"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type submitResponse struct {
	Evaluation         scoring.Evaluation `json:"evaluation"`
	UserAnswer         answerResponse     `json:"userAnswer"`
	QuestionsRemaining int                `json:"questionsRemaining"`
	Pending            bool               `json:"pending"`
}

func toUserResponse(a ledger.Account, withCompleted bool) userResponse {
	u := userResponse{
		ID:                 a.ID,
		Email:              a.Email,
		QuestionsAvailable: a.QuestionsAvailable,
		ReferralCode:       a.ReferralCode,
		ABGroup:            a.Group,
	}
	if withCompleted {
		n := a.QuestionsCompleted
		u.QuestionsCompleted = &n
	}
	return u
}

func toAnswerResponse(a ledger.Answer) answerResponse {
	return answerResponse{
		ID:         a.ID,
		UserID:     a.AccountID,
		QuestionID: a.QuestionID,
		Answer:     a.Answer,
		Score:      a.Score,
		Feedback:   a.Feedback,
		CreatedAt:  a.CreatedAt,
	}
}

func toAnswerList(as []ledger.Answer) []answerResponse {
	out := make([]answerResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAnswerResponse(a))
	}
	return out
}
