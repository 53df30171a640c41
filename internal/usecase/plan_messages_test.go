package usecase

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"dispatch-bot/internal/domain/model"
)

func samplePlan() *model.ExecutorPlan {
	start := time.Date(2024, time.January, 3, 12, 0, 0, 0, time.UTC)
	return &model.ExecutorPlan{
		ID:         42,
		ChatID:     -100500,
		Phone:      "+77001234567",
		Nickname:   ptr("Aidar"),
		PlanChoice: model.PlanChoice7,
		StartAt:    start,
		EndsAt:     start.Add(7 * 24 * time.Hour),
		Status:     model.PlanStatusActive,
	}
}

func TestMessageComposer_PlanSummary(t *testing.T) {
	t.Parallel()

	c := NewMessageComposer(time.FixedZone("ALMT", 5*3600))
	p := samplePlan()
	p.Comment = ptr("night shifts")

	got := c.PlanSummary(p)
	for _, want := range []string{
		"Plan #42",
		"Phone: +77001234567",
		"Nickname: Aidar",
		"Plan: 7 days",
		"Start: 03.01.2024 17:00",
		"End: 10.01.2024 17:00",
		"Status: Active",
		"Reminders: on",
		"Next reminder: T-48 at 08.01.2024 17:00",
		"Comment: night shifts",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary misses %q:\n%s", want, got)
		}
	}
}

func TestMessageComposer_PlanSummaryExhausted(t *testing.T) {
	t.Parallel()

	c := NewMessageComposer(nil)
	p := samplePlan()
	p.Muted = true
	p.Nickname = nil
	p.PlanChoice = model.PlanChoiceTrial
	p.Status = model.PlanStatusCompleted
	p.ReminderIndex = len(model.ReminderStages)

	got := c.PlanSummary(p)
	for _, want := range []string{"Plan: Trial", "Status: Completed", "Reminders: muted", "Next reminder: exhausted"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary misses %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Nickname") || strings.Contains(got, "Comment") {
		t.Fatalf("summary should skip empty fields:\n%s", got)
	}
}

func TestMessageComposer_ReminderMessage(t *testing.T) {
	t.Parallel()

	c := NewMessageComposer(time.UTC)
	p := samplePlan()

	got := c.ReminderMessage(p, 2)
	if !strings.HasPrefix(got, "⏰ Plan reminder T-3\n") {
		t.Fatalf("unexpected header:\n%s", got)
	}
	for _, want := range []string{"Phone: +77001234567 (Aidar)", "Plan: 7 days", "Start: 03.01.2024 12:00", "End: 10.01.2024 12:00"} {
		if !strings.Contains(got, want) {
			t.Fatalf("reminder misses %q:\n%s", want, got)
		}
	}
	if c.ReminderMessage(p, 2) != got {
		t.Fatalf("expected deterministic output")
	}
}

func TestReminderKeyboard(t *testing.T) {
	t.Parallel()

	rows := ReminderKeyboard(42)
	if len(rows) != 1 || len(rows[0]) != 1 {
		t.Fatalf("expected a single button, got %+v", rows)
	}
	if rows[0][0].Data != "xp:mute:42" {
		t.Fatalf("unexpected callback data %q", rows[0][0].Data)
	}
}

func TestPlanCardKeyboard(t *testing.T) {
	t.Parallel()

	p := samplePlan()
	if rows := PlanCardKeyboard(p); len(rows) != 1 || rows[0][0].Data != fmt.Sprintf("xp:mute:%d", p.ID) {
		t.Fatalf("expected mute button, got %+v", rows)
	}
	p.Muted = true
	if rows := PlanCardKeyboard(p); len(rows) != 1 || rows[0][0].Data != fmt.Sprintf("xp:unmute:%d", p.ID) {
		t.Fatalf("expected unmute button, got %+v", rows)
	}
	p.Status = model.PlanStatusCancelled
	if rows := PlanCardKeyboard(p); rows != nil {
		t.Fatalf("expected no buttons for a cancelled plan, got %+v", rows)
	}
}
