package usecase

import (
	"math"
	"time"

	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain/model"
)

const defaultTrialDays = 3

var defaultPaidDays = [3]float64{7, 15, 30}

// DurationPolicy maps a plan choice to its length in days.
type DurationPolicy struct {
	trialDays float64
	paidDays  config.DurationVector
}

func NewDurationPolicy(cfg config.PlansConfig) *DurationPolicy {
	return &DurationPolicy{trialDays: cfg.TrialDays, paidDays: cfg.Durations}
}

// DefaultDurationPolicy uses the hardcoded durations only.
func DefaultDurationPolicy() *DurationPolicy {
	return &DurationPolicy{trialDays: math.NaN(), paidDays: config.UnsetDurations()}
}

// DurationDays never fails: a configured value that is non-finite or <= 0 falls
// back to the hardcoded default. The result is rounded and at least 1.
func (p *DurationPolicy) DurationDays(choice model.PlanChoice) int {
	switch choice {
	case model.PlanChoice7:
		return positiveDays(p.paidDays[0], defaultPaidDays[0])
	case model.PlanChoice15:
		return positiveDays(p.paidDays[1], defaultPaidDays[1])
	case model.PlanChoice30:
		return positiveDays(p.paidDays[2], defaultPaidDays[2])
	default:
		return positiveDays(p.trialDays, defaultTrialDays)
	}
}

// Duration is DurationDays expressed as a time.Duration.
func (p *DurationPolicy) Duration(choice model.PlanChoice) time.Duration {
	return time.Duration(p.DurationDays(choice)) * 24 * time.Hour
}

func positiveDays(configured, fallback float64) int {
	v := configured
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		v = fallback
	}
	if v > model.MaxPlanDays {
		v = model.MaxPlanDays
	}
	days := int(math.Round(v))
	if days < 1 {
		days = 1
	}
	return days
}
