package api

import (
	"errors"
	"net/http"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/quota"
)

// writeServiceError maps domain error kinds to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quota.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, quota.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
	case errors.Is(err, quota.ErrQuotaExhausted):
		writeError(w, http.StatusPaymentRequired, "quota_exhausted",
			"no questions left; share your referral code to earn more")
	case errors.Is(err, questions.ErrNotFound):
		writeError(w, http.StatusNotFound, "question_not_found", "question not found")
	case errors.Is(err, quota.ErrCodeGenerationExhausted):
		writeError(w, http.StatusInternalServerError, "code_generation_exhausted", "could not allocate a referral code")
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "account not found")
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
