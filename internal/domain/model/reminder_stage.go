package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReminderStage is one fixed notification point relative to a plan's EndsAt.
type ReminderStage struct {
	Offset time.Duration
	Label  string
}

// ReminderStages is the campaign every active plan walks through, in order.
// ExecutorPlan.ReminderIndex points at the next stage to fire; an index equal to
// len(ReminderStages) means the campaign is exhausted.
var ReminderStages = []ReminderStage{
	{Offset: -48 * time.Hour, Label: "T-48"},
	{Offset: -24 * time.Hour, Label: "T-24"},
	{Offset: -3 * time.Hour, Label: "T-3"},
	{Offset: 0, Label: "T"},
	{Offset: 24 * time.Hour, Label: "T+24"},
}

// StageDueAt returns endsAt shifted by the stage offset. ok is false for an
// index outside the stage table.
func StageDueAt(endsAt time.Time, index int) (due time.Time, ok bool) {
	if index < 0 || index >= len(ReminderStages) {
		return time.Time{}, false
	}
	return endsAt.Add(ReminderStages[index].Offset), true
}

// StageLabel returns the human label of a stage, or "" when out of range.
func StageLabel(index int) string {
	if index < 0 || index >= len(ReminderStages) {
		return ""
	}
	return ReminderStages[index].Label
}

// ReminderJob is the payload of a delayed reminder job.
type ReminderJob struct {
	PlanID        int64 `json:"planId"`
	ReminderIndex int   `json:"reminderIndex"`
}

// ID is the composite job identity "<planId>:<reminderIndex>". Scheduling the
// same (plan, stage) pair twice overwrites instead of duplicating.
func (j ReminderJob) ID() string {
	return ReminderJobID(j.PlanID, j.ReminderIndex)
}

func ReminderJobID(planID int64, index int) string {
	return fmt.Sprintf("%d:%d", planID, index)
}

// ParseReminderJobID is the inverse of ReminderJobID.
func ParseReminderJobID(id string) (ReminderJob, error) {
	left, right, ok := strings.Cut(id, ":")
	if !ok {
		return ReminderJob{}, fmt.Errorf("malformed reminder job id %q", id)
	}
	planID, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return ReminderJob{}, fmt.Errorf("malformed reminder job id %q: %w", id, err)
	}
	index, err := strconv.Atoi(right)
	if err != nil {
		return ReminderJob{}, fmt.Errorf("malformed reminder job id %q: %w", id, err)
	}
	return ReminderJob{PlanID: planID, ReminderIndex: index}, nil
}
