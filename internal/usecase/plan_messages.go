package usecase

import (
	"fmt"
	"strings"
	"time"

	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
)

const messageTimeLayout = "02.01.2006 15:04"

// Callback data prefixes of the plan buttons; the plan id follows.
const (
	MuteCallbackPrefix   = "xp:mute:"
	UnmuteCallbackPrefix = "xp:unmute:"
)

// ReminderKeyboard is attached to every reminder message.
func ReminderKeyboard(planID int64) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{
		{Text: "🔕 Mute reminders", Data: fmt.Sprintf("%s%d", MuteCallbackPrefix, planID)},
	}}
}

// PlanCardKeyboard toggles reminders from a plan summary card. Plans that no
// longer get reminders have no buttons.
func PlanCardKeyboard(p *model.ExecutorPlan) [][]adapter.InlineButton {
	if p == nil || p.Status != model.PlanStatusActive {
		return nil
	}
	if p.Muted {
		return [][]adapter.InlineButton{{
			{Text: "🔔 Unmute reminders", Data: fmt.Sprintf("%s%d", UnmuteCallbackPrefix, p.ID)},
		}}
	}
	return ReminderKeyboard(p.ID)
}

// MessageComposer renders plan summaries and reminder texts. It has no side
// effects; all timestamps are shown in one fixed time zone.
type MessageComposer struct {
	loc *time.Location
}

func NewMessageComposer(loc *time.Location) *MessageComposer {
	if loc == nil {
		loc = time.UTC
	}
	return &MessageComposer{loc: loc}
}

func PlanChoiceLabel(c model.PlanChoice) string {
	switch c {
	case model.PlanChoiceTrial:
		return "Trial"
	case model.PlanChoice7, model.PlanChoice15, model.PlanChoice30:
		return string(c) + " days"
	}
	return string(c)
}

func PlanStatusLabel(s model.PlanStatus) string {
	switch s {
	case model.PlanStatusActive:
		return "Active"
	case model.PlanStatusBlocked:
		return "Blocked"
	case model.PlanStatusCompleted:
		return "Completed"
	case model.PlanStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

func (c *MessageComposer) format(t time.Time) string {
	return t.In(c.loc).Format(messageTimeLayout)
}

// PlanSummary renders the moderator-facing card of a plan.
func (c *MessageComposer) PlanSummary(p *model.ExecutorPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan #%d\n", p.ID)
	fmt.Fprintf(&b, "Phone: %s\n", p.Phone)
	if p.Nickname != nil && *p.Nickname != "" {
		fmt.Fprintf(&b, "Nickname: %s\n", *p.Nickname)
	}
	fmt.Fprintf(&b, "Plan: %s\n", PlanChoiceLabel(p.PlanChoice))
	fmt.Fprintf(&b, "Start: %s\n", c.format(p.StartAt))
	fmt.Fprintf(&b, "End: %s\n", c.format(p.EndsAt))
	fmt.Fprintf(&b, "Status: %s\n", PlanStatusLabel(p.Status))
	if p.Muted {
		b.WriteString("Reminders: muted\n")
	} else {
		b.WriteString("Reminders: on\n")
	}
	if due, ok := model.StageDueAt(p.EndsAt, p.ReminderIndex); ok {
		fmt.Fprintf(&b, "Next reminder: %s at %s", model.StageLabel(p.ReminderIndex), c.format(due))
	} else {
		b.WriteString("Next reminder: exhausted")
	}
	if p.Comment != nil && *p.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", *p.Comment)
	}
	return b.String()
}

// ReminderMessage renders the notification sent for the given stage.
func (c *MessageComposer) ReminderMessage(p *model.ExecutorPlan, stage int) string {
	var b strings.Builder
	label := model.StageLabel(stage)
	if label == "" {
		label = "reminder"
	}
	fmt.Fprintf(&b, "⏰ Plan reminder %s\n", label)
	fmt.Fprintf(&b, "Phone: %s", p.Phone)
	if p.Nickname != nil && *p.Nickname != "" {
		fmt.Fprintf(&b, " (%s)", *p.Nickname)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Plan: %s\n", PlanChoiceLabel(p.PlanChoice))
	fmt.Fprintf(&b, "Start: %s\n", c.format(p.StartAt))
	fmt.Fprintf(&b, "End: %s", c.format(p.EndsAt))
	if p.Comment != nil && *p.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", *p.Comment)
	}
	return b.String()
}
