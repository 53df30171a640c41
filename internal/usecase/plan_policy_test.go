package usecase

import (
	"math"
	"testing"
	"time"

	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain/model"
)

func TestDurationPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := DefaultDurationPolicy()
	want := map[model.PlanChoice]int{
		model.PlanChoiceTrial: 3,
		model.PlanChoice7:     7,
		model.PlanChoice15:    15,
		model.PlanChoice30:    30,
	}
	for choice, days := range want {
		if got := p.DurationDays(choice); got != days {
			t.Fatalf("%s: expected %d days, got %d", choice, days, got)
		}
	}
	if got := p.Duration(model.PlanChoice7); got != 7*24*time.Hour {
		t.Fatalf("expected 7 days duration, got %s", got)
	}
}

func TestDurationPolicy_Overrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    config.PlansConfig
		choice model.PlanChoice
		want   int
	}{
		{"trial override rounded", config.PlansConfig{TrialDays: 2.4, Durations: config.UnsetDurations()}, model.PlanChoiceTrial, 2},
		{"trial nan falls back", config.PlansConfig{TrialDays: math.NaN(), Durations: config.UnsetDurations()}, model.PlanChoiceTrial, 3},
		{"trial zero falls back", config.PlansConfig{TrialDays: 0, Durations: config.UnsetDurations()}, model.PlanChoiceTrial, 3},
		{"tiny positive is at least one", config.PlansConfig{TrialDays: 0.3, Durations: config.UnsetDurations()}, model.PlanChoiceTrial, 1},
		{"first slot", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{8, math.NaN(), math.NaN()}}, model.PlanChoice7, 8},
		{"unset slot keeps default", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{8, math.NaN(), math.NaN()}}, model.PlanChoice15, 15},
		{"negative slot falls back", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{8, 16, -4}}, model.PlanChoice30, 30},
		{"infinite slot falls back", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{math.Inf(1), 16, 31}}, model.PlanChoice7, 7},
		{"last slot", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{8, 16, 31.6}}, model.PlanChoice30, 32},
		{"huge slot is clamped", config.PlansConfig{TrialDays: math.NaN(), Durations: config.DurationVector{1e300, 16, 31}}, model.PlanChoice7, model.MaxPlanDays},
		{"huge trial is clamped", config.PlansConfig{TrialDays: 1e18, Durations: config.UnsetDurations()}, model.PlanChoiceTrial, model.MaxPlanDays},
		{"unknown choice uses trial", config.PlansConfig{TrialDays: 5, Durations: config.UnsetDurations()}, model.PlanChoice("90"), 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewDurationPolicy(tt.cfg).DurationDays(tt.choice)
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
