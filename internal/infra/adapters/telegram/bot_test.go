package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dispatch-bot/internal/application"
	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/usecase"
)

const (
	moderatorID = int64(1111)
	groupChatID = int64(-100500)
)

type apiCall struct {
	endpoint string
	params   tgbotapi.Params
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{endpoint: endpoint, params: params})
	result := json.RawMessage(`true`)
	if endpoint == "sendMessage" {
		result = json.RawMessage(`{"message_id":77}`)
	}
	return &tgbotapi.APIResponse{Ok: true, Result: result}, nil
}

func (f *fakeAPI) sent() []apiCall {
	var out []apiCall
	for _, c := range f.calls {
		if c.endpoint == "sendMessage" {
			out = append(out, c)
		}
	}
	return out
}

type fakePlanUC struct {
	submitted []model.Mutation
	cards     [][3]int64
}

func (f *fakePlanUC) Submit(_ context.Context, m model.Mutation) (*usecase.CommandResult, error) {
	f.submitted = append(f.submitted, m)
	return &usecase.CommandResult{Outcome: model.Updated(&model.ExecutorPlan{ID: model.TargetID(m), Status: model.PlanStatusActive})}, nil
}

func (f *fakePlanUC) Get(_ context.Context, id int64) (*model.ExecutorPlan, error) {
	if id == 8 {
		return &model.ExecutorPlan{ID: 8, Status: model.PlanStatusActive}, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakePlanUC) Summary(p *model.ExecutorPlan) string { return "card of plan" }

func (f *fakePlanUC) AttachCard(_ context.Context, id, chatID int64, messageID int) error {
	f.cards = append(f.cards, [3]int64{id, chatID, int64(messageID)})
	return nil
}

func (f *fakePlanUC) FlushBacklog(context.Context) (int, int64, error) { return 0, 0, nil }

func (f *fakePlanUC) IsBlocked(context.Context, string) (bool, *model.ExecutorBlock, error) {
	return false, nil, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestBot(limiter RateLimiter) (*ModeratorBot, *fakeAPI, *fakePlanUC) {
	log := zerolog.Nop()
	api := &fakeAPI{}
	uc := &fakePlanUC{}
	cfg := &config.BotConfig{ModeratorIDs: []int64{moderatorID}, RateLimit: 5, RateWindow: time.Minute}
	facade := application.NewPlanFacade(uc, time.UTC)
	return newModeratorBot(cfg, api, facade, limiter, &log), api, uc
}

func commandUpdate(text string, from int64) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: groupChatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestModeratorBot_RejectsNonModerators(t *testing.T) {
	bot, api, uc := newTestBot(nil)

	if err := bot.handleUpdate(context.Background(), commandUpdate("/delete 3", 4242)); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	sent := api.sent()
	if len(sent) != 1 || sent[0].params["text"] != replyUnauthorized {
		t.Fatalf("expected unauthorized reply, got %+v", sent)
	}
	if len(uc.submitted) != 0 {
		t.Fatalf("non-moderator must not mutate plans")
	}
}

func TestModeratorBot_ShowsPlanAndAttachesCard(t *testing.T) {
	bot, api, uc := newTestBot(nil)

	if err := bot.handleUpdate(context.Background(), commandUpdate("/plan 8", moderatorID)); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	sent := api.sent()
	if len(sent) != 1 || sent[0].params["text"] != "card of plan" || sent[0].params["chat_id"] != "-100500" {
		t.Fatalf("unexpected messages %+v", sent)
	}
	if !strings.Contains(sent[0].params["reply_markup"], "xp:mute:8") {
		t.Fatalf("expected mute button, got %q", sent[0].params["reply_markup"])
	}
	if len(uc.cards) != 1 || uc.cards[0] != [3]int64{8, groupChatID, 77} {
		t.Fatalf("expected card to be attached, got %+v", uc.cards)
	}
}

func TestModeratorBot_CommandBecomesMutation(t *testing.T) {
	bot, _, uc := newTestBot(nil)

	if err := bot.handleUpdate(context.Background(), commandUpdate("/block 5 fake orders", moderatorID)); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if len(uc.submitted) != 1 {
		t.Fatalf("expected one mutation, got %d", len(uc.submitted))
	}
	m, ok := uc.submitted[0].(model.SetPlanStatus)
	if !ok || m.ID != 5 || m.Status != model.PlanStatusBlocked || m.Reason == nil || *m.Reason != "fake orders" {
		t.Fatalf("unexpected mutation %+v", uc.submitted[0])
	}
}

func TestModeratorBot_RateLimited(t *testing.T) {
	bot, api, uc := newTestBot(denyAll{})

	if err := bot.handleUpdate(context.Background(), commandUpdate("/extend 5 7", moderatorID)); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	sent := api.sent()
	if len(sent) != 1 || sent[0].params["text"] != replyRateLimited || len(uc.submitted) != 0 {
		t.Fatalf("expected rate limit reply, got %+v", sent)
	}
}

func TestModeratorBot_IgnoresChatter(t *testing.T) {
	bot, api, _ := newTestBot(nil)
	ctx := context.Background()

	plain := tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", From: &tgbotapi.User{ID: moderatorID}, Chat: &tgbotapi.Chat{ID: groupChatID}}}
	if err := bot.handleUpdate(ctx, plain); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if err := bot.handleUpdate(ctx, commandUpdate("/start", moderatorID)); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("expected no API calls, got %+v", api.calls)
	}
}

func TestModeratorBot_MuteCallback(t *testing.T) {
	bot, api, uc := newTestBot(nil)

	up := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: moderatorID},
		Data: "xp:mute:9",
	}}
	if err := bot.handleUpdate(context.Background(), up); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if len(uc.submitted) != 1 {
		t.Fatalf("expected one mutation, got %d", len(uc.submitted))
	}
	if m := uc.submitted[0].(model.MutePlan); m.ID != 9 || !m.Muted {
		t.Fatalf("unexpected mutation %+v", m)
	}
	if len(api.calls) != 1 || api.calls[0].endpoint != "answerCallbackQuery" {
		t.Fatalf("expected a single callback answer, got %+v", api.calls)
	}
	if got := api.calls[0].params["text"]; got != "🔕 Reminders muted" {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestModeratorBot_CallbackFromStranger(t *testing.T) {
	bot, api, uc := newTestBot(nil)

	up := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb-2", From: &tgbotapi.User{ID: 7}, Data: "xp:unmute:9"}}
	if err := bot.handleUpdate(context.Background(), up); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if len(uc.submitted) != 0 || api.calls[0].params["text"] != replyUnauthorized {
		t.Fatalf("stranger must be refused, got %+v", api.calls)
	}
}

func TestSender_PassesThreadAndKeyboard(t *testing.T) {
	api := &fakeAPI{}
	s := &Sender{api: api}
	thread := 12

	rows := [][]adapter.InlineButton{{{Text: "Mute", Data: "xp:mute:1"}}, {}}
	id, err := s.SendCard(context.Background(), groupChatID, &thread, "hello", rows)
	if err != nil || id != 77 {
		t.Fatalf("SendCard = (%d, %v)", id, err)
	}
	p := api.calls[0].params
	if p["message_thread_id"] != "12" || p["text"] != "hello" {
		t.Fatalf("unexpected params %+v", p)
	}
	var markup tgbotapi.InlineKeyboardMarkup
	if err := json.Unmarshal([]byte(p["reply_markup"]), &markup); err != nil {
		t.Fatalf("decode markup: %v", err)
	}
	if len(markup.InlineKeyboard) != 1 || *markup.InlineKeyboard[0][0].CallbackData != "xp:mute:1" {
		t.Fatalf("unexpected markup %+v", markup)
	}

	if err := s.Send(context.Background(), groupChatID, nil, "plain", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := api.calls[1].params["reply_markup"]; ok {
		t.Fatal("no keyboard expected")
	}
	if _, ok := api.calls[1].params["message_thread_id"]; ok {
		t.Fatal("no thread expected")
	}
}
