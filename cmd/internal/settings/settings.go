// Package settings is the read-only config store: integer values keyed by
// (key, experiment group) with built-in fallbacks, plus marketing copy per group.
package settings

import "context"

// Known config keys.
//
// KeyFreeQuestions is stored and defaulted for parity with existing config
// rows, but nothing reads it: the free baseline is the fixed quota.FreeBaseline
// and stays non-configurable. Its default must equal that constant.
const (
	KeyFreeQuestions         = "free_questions"
	KeyLoginQuestions        = "login_questions"
	KeyReferralBonusExisting = "referral_bonus_existing"
	KeyReferralBonusNew      = "referral_bonus_new"
)

// Experiment groups.
const (
	GroupA = "A"
	GroupB = "B"
)

var defaults = map[string]int{
	KeyFreeQuestions:         3,
	KeyLoginQuestions:        10,
	KeyReferralBonusExisting: 10,
	KeyReferralBonusNew:      5,
}

// Default returns the built-in value for key, or 0 for an unknown key.
func Default(key string) int {
	return defaults[key]
}

// Store resolves config values and marketing copy. Implementations never fail:
// absence and backend errors both resolve to the built-in default.
type Store interface {
	GetConfigValue(ctx context.Context, key, group string) int
	GetMarketingConfig(ctx context.Context, group string) map[string]string
}

// DefaultMarketing returns the starter marketing copy for both groups.
func DefaultMarketing() map[string]map[string]string {
	return map[string]map[string]string{
		GroupA: {
			"hero_title":       "Ace your next interview",
			"hero_subtitle":    "Practice real questions and get instant AI feedback.",
			"referral_heading": "Invite a friend, get 10 more questions",
			"referral_body":    "Share your code. When a friend signs up, you both get bonus questions.",
			"quota_exhausted":  "You're out of questions. Invite a friend to unlock more.",
		},
		GroupB: {
			"hero_title":       "Interview practice that talks back",
			"hero_subtitle":    "Answer, get scored on structure, content and communication, repeat.",
			"referral_heading": "Earn free questions",
			"referral_body":    "Every friend who joins with your code adds questions to your account.",
			"quota_exhausted":  "No questions left. Share your referral code to keep practicing.",
		},
	}
}
