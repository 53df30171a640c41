package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/usecase"
)

const (
	replyQueued         = "⏳ Saved to the queue, it will be applied shortly."
	replyNotFound       = "Plan not found."
	replyInvalid        = "Invalid arguments."
	replyDuplicate      = "This phone already has an active or blocked plan."
	replyFailed         = "Failed to save the change. Please try again later."
	noticeReminderOff   = "⚠️ Reminders are disabled on this deployment."
	usageNewPlan        = "Usage: /newplan <phone> <trial|7|15|30> [nickname]"
	usageExtend         = "Usage: /extend <id> <days>"
	usageSetStart       = "Usage: /setstart <id> <YYYY-MM-DD[THH:MM]>"
	usageID             = "Usage: /%s <id>"
	startDateLayout     = "2006-01-02"
	startDateTimeLayout = "2006-01-02T15:04"
)

const helpText = "Plan commands:\n" +
	"/newplan <phone> <trial|7|15|30> [nickname]\n" +
	"/plan <id>\n" +
	"/extend <id> <days>\n" +
	"/block <id> [reason]\n" +
	"/unblock <id>\n" +
	"/cancel <id>\n" +
	"/mute <id>, /unmute <id>\n" +
	"/setstart <id> <YYYY-MM-DD[THH:MM]>\n" +
	"/comment <id> [text]\n" +
	"/delete <id>\n" +
	"/blocked <phone>\n" +
	"/flush"

// Reply is what the bot posts back to the moderator.
type Reply struct {
	Text     string
	Keyboard [][]adapter.InlineButton
	// CardFor is the plan whose summary card Text is; the bot records the
	// posted message with AttachCard.
	CardFor int64
}

// PlanFacade turns moderator command arguments into plan mutations and
// renders the result as chat text.
type PlanFacade struct {
	PlanUC PlanUseCaseIface
	loc    *time.Location
	now    func() time.Time
}

func NewPlanFacade(planUC PlanUseCaseIface, loc *time.Location) *PlanFacade {
	if loc == nil {
		loc = time.UTC
	}
	return &PlanFacade{PlanUC: planUC, loc: loc, now: time.Now}
}

// WithClock overrides the time source used as the start of new plans.
func (f *PlanFacade) WithClock(now func() time.Time) *PlanFacade {
	f.now = now
	return f
}

func (f *PlanFacade) Help() Reply { return Reply{Text: helpText} }

// HandleNewPlan: <phone> <choice> [nickname...]
func (f *PlanFacade) HandleNewPlan(ctx context.Context, chatID int64, threadID *int, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Reply{Text: usageNewPlan}, nil
	}
	choice, err := model.ParsePlanChoice(fields[1])
	if err != nil {
		return Reply{Text: usageNewPlan}, nil
	}
	in := model.PlanInsertInput{
		ChatID:     chatID,
		ThreadID:   threadID,
		Phone:      fields[0],
		PlanChoice: choice,
		StartAt:    f.now().UTC(),
	}
	if len(fields) > 2 {
		nick := strings.Join(fields[2:], " ")
		in.Nickname = &nick
	}
	return f.submit(ctx, model.CreatePlan{Input: in})
}

func (f *PlanFacade) HandleShow(ctx context.Context, args string) (Reply, error) {
	id, ok := parseID(args)
	if !ok {
		return Reply{Text: fmt.Sprintf(usageID, "plan")}, nil
	}
	p, err := f.PlanUC.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{Text: replyNotFound}, nil
	}
	if err != nil {
		return Reply{Text: replyFailed}, err
	}
	return Reply{Text: f.PlanUC.Summary(p), Keyboard: usecase.PlanCardKeyboard(p), CardFor: p.ID}, nil
}

// HandleExtend: <id> <days>
func (f *PlanFacade) HandleExtend(ctx context.Context, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return Reply{Text: usageExtend}, nil
	}
	id, ok := parseID(fields[0])
	days, err := strconv.Atoi(fields[1])
	if !ok || err != nil || days <= 0 {
		return Reply{Text: usageExtend}, nil
	}
	return f.submit(ctx, model.ExtendPlan{ID: id, Days: days})
}

// HandleStatus: <id> [reason...]. The reason is kept only for blocks.
func (f *PlanFacade) HandleStatus(ctx context.Context, command string, status model.PlanStatus, args string) (Reply, error) {
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, ok := parseID(idPart)
	if !ok {
		return Reply{Text: fmt.Sprintf(usageID, command)}, nil
	}
	m := model.SetPlanStatus{ID: id, Status: status}
	if status == model.PlanStatusBlocked {
		if reason := strings.TrimSpace(rest); reason != "" {
			m.Reason = &reason
		}
	}
	return f.submit(ctx, m)
}

func (f *PlanFacade) HandleMute(ctx context.Context, args string, muted bool) (Reply, error) {
	id, ok := parseID(args)
	if !ok {
		cmd := "mute"
		if !muted {
			cmd = "unmute"
		}
		return Reply{Text: fmt.Sprintf(usageID, cmd)}, nil
	}
	return f.submit(ctx, model.MutePlan{ID: id, Muted: muted})
}

// HandleSetStart: <id> <date>. Dates are read in the bot's timezone.
func (f *PlanFacade) HandleSetStart(ctx context.Context, args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return Reply{Text: usageSetStart}, nil
	}
	id, ok := parseID(fields[0])
	if !ok {
		return Reply{Text: usageSetStart}, nil
	}
	start, err := f.parseStart(fields[1])
	if err != nil {
		return Reply{Text: usageSetStart}, nil
	}
	return f.submit(ctx, model.SetPlanStart{ID: id, StartAt: start})
}

func (f *PlanFacade) parseStart(s string) (time.Time, error) {
	for _, layout := range []string{startDateTimeLayout, startDateLayout} {
		if t, err := time.ParseInLocation(layout, s, f.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.ErrInvalidArgument
}

// HandleComment: <id> [text...]. No text clears the comment.
func (f *PlanFacade) HandleComment(ctx context.Context, args string) (Reply, error) {
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, ok := parseID(idPart)
	if !ok {
		return Reply{Text: fmt.Sprintf(usageID, "comment")}, nil
	}
	m := model.CommentPlan{ID: id}
	if text := strings.TrimSpace(rest); text != "" {
		m.Comment = &text
	}
	return f.submit(ctx, m)
}

func (f *PlanFacade) HandleDelete(ctx context.Context, args string) (Reply, error) {
	id, ok := parseID(args)
	if !ok {
		return Reply{Text: fmt.Sprintf(usageID, "delete")}, nil
	}
	return f.submit(ctx, model.DeletePlan{ID: id})
}

func (f *PlanFacade) HandleFlush(ctx context.Context) (Reply, error) {
	applied, remaining, err := f.PlanUC.FlushBacklog(ctx)
	if err != nil {
		return Reply{Text: fmt.Sprintf("Flush stopped after %d change(s): %v", applied, err)}, err
	}
	return Reply{Text: fmt.Sprintf("Applied %d queued change(s), %d left.", applied, remaining)}, nil
}

// HandleBlocked reports whether a phone is on the block list.
func (f *PlanFacade) HandleBlocked(ctx context.Context, args string) (Reply, error) {
	phone := strings.TrimSpace(args)
	if phone == "" {
		return Reply{Text: "Usage: /blocked <phone>"}, nil
	}
	blocked, b, err := f.PlanUC.IsBlocked(ctx, phone)
	if err != nil {
		return Reply{Text: replyFailed}, err
	}
	if !blocked {
		return Reply{Text: fmt.Sprintf("%s is not blocked.", phone)}, nil
	}
	text := fmt.Sprintf("%s is blocked since %s.", b.Phone, b.CreatedAt.In(f.loc).Format("2006-01-02 15:04"))
	if b.Reason != nil && *b.Reason != "" {
		text += "\nReason: " + *b.Reason
	}
	return Reply{Text: text}, nil
}

// HandleCallback serves the plan card buttons. ok is false for callback data
// that belongs to someone else.
func (f *PlanFacade) HandleCallback(ctx context.Context, data string) (reply Reply, ok bool, err error) {
	switch {
	case strings.HasPrefix(data, usecase.MuteCallbackPrefix):
		reply, err = f.HandleMute(ctx, strings.TrimPrefix(data, usecase.MuteCallbackPrefix), true)
	case strings.HasPrefix(data, usecase.UnmuteCallbackPrefix):
		reply, err = f.HandleMute(ctx, strings.TrimPrefix(data, usecase.UnmuteCallbackPrefix), false)
	default:
		return Reply{}, false, nil
	}
	return reply, true, err
}

func (f *PlanFacade) submit(ctx context.Context, m model.Mutation) (Reply, error) {
	res, err := f.PlanUC.Submit(ctx, m)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			return Reply{Text: replyDuplicate}, nil
		case errors.Is(err, domain.ErrInvalidArgument):
			return Reply{Text: replyInvalid}, nil
		}
		return Reply{Text: replyFailed}, err
	}
	return f.render(res), nil
}

func (f *PlanFacade) render(res *usecase.CommandResult) Reply {
	switch {
	case res.Queued:
		return Reply{Text: replyQueued}
	case res.NotFound():
		return Reply{Text: replyNotFound}
	}
	var r Reply
	switch res.Outcome.Kind {
	case model.OutcomeDeleted:
		r.Text = fmt.Sprintf("Plan #%d deleted.", res.Outcome.PlanID)
	default:
		r.Text = f.PlanUC.Summary(res.Outcome.Plan)
		r.Keyboard = usecase.PlanCardKeyboard(res.Outcome.Plan)
		r.CardFor = res.Outcome.PlanID
	}
	if res.RemindersDisabled {
		r.Text += "\n\n" + noticeReminderOff
	}
	return r
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
