package model

import (
	"strings"
	"time"

	"dispatch-bot/internal/domain"
)

// PlanChoice is the duration class a moderator picked for an executor plan.
type PlanChoice string

const (
	PlanChoiceTrial PlanChoice = "trial"
	PlanChoice7     PlanChoice = "7"
	PlanChoice15    PlanChoice = "15"
	PlanChoice30    PlanChoice = "30"
)

// ParsePlanChoice accepts "trial", "7", "15", "30" (and "7d" style suffixes).
func ParsePlanChoice(s string) (PlanChoice, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if PlanChoice(v) == PlanChoiceTrial {
		return PlanChoiceTrial, nil
	}
	switch c := PlanChoice(strings.TrimSuffix(v, "d")); c {
	case PlanChoice7, PlanChoice15, PlanChoice30:
		return c, nil
	}
	return "", domain.ErrInvalidArgument
}

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusBlocked   PlanStatus = "blocked"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusCancelled
}

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusActive, PlanStatusBlocked, PlanStatusCompleted, PlanStatusCancelled:
		return true
	}
	return false
}

// ExecutorPlan is the time-bounded entitlement tracked for a phone-identified executor.
type ExecutorPlan struct {
	ID                 int64
	ChatID             int64
	ThreadID           *int
	Phone              string
	Nickname           *string
	PlanChoice         PlanChoice
	StartAt            time.Time
	EndsAt             time.Time
	Comment            *string
	Status             PlanStatus
	Muted              bool
	ReminderIndex      int
	ReminderLastSentAt *time.Time
	CardMessageID      *int
	CardChatID         *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NeedsReminder reports whether a delayed reminder job should exist for the plan.
func (p *ExecutorPlan) NeedsReminder() bool {
	return p != nil &&
		p.Status == PlanStatusActive &&
		!p.Muted &&
		p.ReminderIndex >= 0 &&
		p.ReminderIndex < len(ReminderStages)
}

// PlanInsertInput carries the fields accepted when a plan is created.
// EndsAt may be left nil; it is then derived from the duration policy.
type PlanInsertInput struct {
	ChatID     int64      `json:"chatId"`
	ThreadID   *int       `json:"threadId,omitempty"`
	Phone      string     `json:"phone"`
	Nickname   *string    `json:"nickname,omitempty"`
	PlanChoice PlanChoice `json:"planChoice"`
	StartAt    time.Time  `json:"startAt"`
	EndsAt     *time.Time `json:"endsAt,omitempty"`
	Comment    *string    `json:"comment,omitempty"`
}

func (in PlanInsertInput) Validate() error {
	if in.ChatID == 0 || strings.TrimSpace(in.Phone) == "" || !InPlanHorizon(in.StartAt) {
		return domain.ErrInvalidArgument
	}
	if _, err := ParsePlanChoice(string(in.PlanChoice)); err != nil {
		return err
	}
	if in.EndsAt != nil {
		if in.EndsAt.Before(in.StartAt) || in.EndsAt.Sub(in.StartAt) > MaxPlanDays*24*time.Hour {
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

// MaxPlanDays bounds a plan window and a single extension.
const MaxPlanDays = 3650

var (
	planHorizonStart = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	planHorizonEnd   = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// InPlanHorizon reports whether t may start a plan window.
func InPlanHorizon(t time.Time) bool {
	return !t.Before(planHorizonStart) && t.Before(planHorizonEnd)
}

// ExecutorBlock is a phone-keyed denylist row, present while a plan with that phone is blocked.
type ExecutorBlock struct {
	Phone     string
	Reason    *string
	CreatedAt time.Time
}

// NormalizePhone strips formatting so that duplicate detection works on digits only.
// A leading '+' is preserved.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
