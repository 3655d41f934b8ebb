// Package telegrambot is the concrete chat.Port adapter (component C5)
// shipped with this module (SPEC_FULL.md §4.5/§4.6 Open Question decision:
// ship one concrete chat provider). It is a small hand-written Telegram Bot
// API client over net/http — the pack's only chat-protocol example
// (KurtSkinny-telegram-userbot) targets Telegram via the heavier MTProto
// gotd/td client, but the webhook/inline-keyboard shape spec §6 describes
// matches the Bot API, not MTProto, so this client talks to
// api.telegram.org/bot<token>/<method> directly instead.
package telegrambot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/antonmal/protectogram/internal/adapter/chat"
)

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	BotToken string
	BaseURL  string // overridable for tests
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessagePayload struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup *struct {
		InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
	} `json:"reply_markup,omitempty"`
}

type editMessagePayload struct {
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	Text        string `json:"text"`
	ReplyMarkup *struct {
		InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
	} `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

type messageResult struct {
	MessageID int `json:"message_id"`
}

func (c *Client) Send(ctx context.Context, req chat.SendMessageRequest) (chat.SendResult, error) {
	var buttons [][]inlineKeyboardButton
	if len(req.Buttons) > 0 {
		row := make([]inlineKeyboardButton, 0, len(req.Buttons))
		for _, b := range req.Buttons {
			row = append(row, inlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
		}
		buttons = [][]inlineKeyboardButton{row}
	}

	if req.EditMessageID != "" {
		payload := editMessagePayload{
			ChatID:    req.ChatProviderID,
			MessageID: req.EditMessageID,
			Text:      req.Text,
		}
		if buttons != nil {
			payload.ReplyMarkup = &struct {
				InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
			}{InlineKeyboard: buttons}
		}
		res, err := c.call(ctx, "editMessageText", payload)
		if err != nil {
			return chat.SendResult{}, err
		}
		var m messageResult
		if err := json.Unmarshal(res, &m); err != nil {
			return chat.SendResult{}, fmt.Errorf("telegrambot: decode edit result: %w", err)
		}
		return chat.SendResult{ProviderMessageID: fmt.Sprintf("%d", m.MessageID)}, nil
	}

	payload := sendMessagePayload{
		ChatID: req.ChatProviderID,
		Text:   req.Text,
	}
	if buttons != nil {
		payload.ReplyMarkup = &struct {
			InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
		}{InlineKeyboard: buttons}
	}

	res, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return chat.SendResult{}, err
	}
	var m messageResult
	if err := json.Unmarshal(res, &m); err != nil {
		return chat.SendResult{}, fmt.Errorf("telegrambot: decode send result: %w", err)
	}
	return chat.SendResult{ProviderMessageID: fmt.Sprintf("%d", m.MessageID)}, nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]string{
		"callback_query_id": callbackID,
		"text":              text,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegrambot: marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegrambot: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("telegrambot: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("telegrambot: decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegrambot: %s rejected by API (status %d)", method, resp.StatusCode)
	}
	return apiResp.Result, nil
}

var _ chat.Port = (*Client)(nil)
