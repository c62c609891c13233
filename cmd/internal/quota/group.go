package quota

import (
	"math/rand/v2"

	"interviewprep/cmd/internal/settings"
)

// GroupPolicy assigns an experiment group to a new account.
type GroupPolicy interface {
	Assign() string
}

// RandomGroupPolicy picks group A with probability ProbabilityA.
// Rand defaults to math/rand/v2.Float64.
type RandomGroupPolicy struct {
	ProbabilityA float64
	Rand         func() float64
}

func (p RandomGroupPolicy) Assign() string {
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	if r() < p.ProbabilityA {
		return settings.GroupA
	}
	return settings.GroupB
}

// FixedGroupPolicy always assigns the same group.
type FixedGroupPolicy string

func (p FixedGroupPolicy) Assign() string { return string(p) }
