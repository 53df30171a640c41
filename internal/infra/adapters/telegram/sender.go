package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dispatch-bot/internal/domain/ports/adapter"
)

// requester is the raw Bot API call surface of *tgbotapi.BotAPI.
type requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

var _ adapter.MessageSender = (*Sender)(nil)

// Sender posts messages through sendMessage directly, so forum thread ids can
// be passed along.
type Sender struct {
	api requester
}

func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

func (s *Sender) Send(ctx context.Context, chatID int64, threadID *int, text string, rows [][]adapter.InlineButton) error {
	_, err := s.SendCard(ctx, chatID, threadID, text, rows)
	return err
}

// SendCard is Send that also returns the id of the posted message.
func (s *Sender) SendCard(ctx context.Context, chatID int64, threadID *int, text string, rows [][]adapter.InlineButton) (int, error) {
	// Support early cancellation
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params["text"] = text
	if threadID != nil {
		params.AddNonZero("message_thread_id", *threadID)
	}
	if markup, ok := inlineMarkup(rows); ok {
		if err := params.AddInterface("reply_markup", markup); err != nil {
			return 0, fmt.Errorf("encode keyboard: %w", err)
		}
	}

	resp, err := s.api.MakeRequest("sendMessage", params)
	if err != nil {
		return 0, err
	}
	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}
	return msg.MessageID, nil
}

// answerCallback stops the client-side spinner of an inline button.
func (s *Sender) answerCallback(queryID, text string) error {
	params := tgbotapi.Params{}
	params["callback_query_id"] = queryID
	params.AddNonEmpty("text", text)
	_, err := s.api.MakeRequest("answerCallbackQuery", params)
	return err
}

// inlineMarkup builds the keyboard:
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func inlineMarkup(rows [][]adapter.InlineButton) (tgbotapi.InlineKeyboardMarkup, bool) {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			var kb tgbotapi.InlineKeyboardButton
			switch {
			case btn.URL != "":
				kb = tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL)
			case btn.Data != "":
				kb = tgbotapi.NewInlineKeyboardButtonData(label, btn.Data)
			default:
				kb = tgbotapi.NewInlineKeyboardButtonData(label, label)
			}
			r = append(r, kb)
		}
		kbRows = append(kbRows, r)
	}
	if len(kbRows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...), true
}
