// Package webhook implements component C9: the inbound HTTP surface every
// chat and voice provider callback enters through. Both routes follow the
// same shape (spec §4.9): authenticate, extract a provider-event-id,
// dedupe via C2, dispatch synchronously to the domain, reply 200. Non-2xx
// is reserved for authentication failures and malformed payloads; domain
// errors are logged and still answered 200 so providers do not retry-storm
// us (spec §7 propagation policy).
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/adapter/chat"
	"github.com/antonmal/protectogram/internal/cascade"
	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/inbox"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/store"
)

// Config carries the per-provider shared secrets (spec §6).
type Config struct {
	ChatWebhookSecret string
	VoiceHMACSecret   string
}

type Handler struct {
	st      store.Store
	inbox   inbox.Inbox
	inc     incident.Service
	cascade *cascade.Engine
	chat    chat.Port
	cfg     Config
	log     *slog.Logger
}

func New(st store.Store, inboxSvc inbox.Inbox, incSvc incident.Service, cascadeEng *cascade.Engine, chatPort chat.Port, cfg Config, log *slog.Logger) *Handler {
	return &Handler{st: st, inbox: inboxSvc, inc: incSvc, cascade: cascadeEng, chat: chatPort, cfg: cfg, log: log.With("component", "webhook")}
}

// Router mounts the two provider callback routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Post("/voice", h.Voice)
	return r
}

// --- chat (Telegram-shaped) ----------------------------------------------

type tgUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int    `json:"message_id"`
	Chat      tgChat `json:"chat"`
	Text      string `json:"text"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID int64 `json:"id"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

// Chat handles POST /webhook/chat: header-secret authenticated, Telegram
// update-shaped body (spec §6, §4.9).
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.authChatHeader(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	var update tgUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	providerEventID := strconv.FormatInt(update.UpdateID, 10)
	fresh, err := h.inbox.Record(r.Context(), "chat", providerEventID, body)
	if err != nil {
		h.log.ErrorContext(r.Context(), "chat webhook: record inbox event failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !fresh {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.dispatchChat(r.Context(), update); err != nil {
		h.log.ErrorContext(r.Context(), "chat webhook: dispatch failed", "update_id", update.UpdateID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) authChatHeader(r *http.Request) bool {
	if h.cfg.ChatWebhookSecret == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.ChatWebhookSecret)) == 1
}

// dispatchChat routes a fresh update to the right domain handler: a
// callback_query is an acknowledgment or traveler cancellation, a plain
// message is otherwise ignored (the bot is notification-only).
func (h *Handler) dispatchChat(ctx context.Context, update tgUpdate) error {
	cb := update.CallbackQuery
	if cb == nil {
		return nil
	}

	kind, incidentID, err := decodeCallbackData(cb.Data)
	if err != nil {
		return fmt.Errorf("webhook: decode callback data %q: %w", cb.Data, err)
	}

	watcher, err := h.st.GetUserByChatProviderID(ctx, strconv.FormatInt(cb.From.ID, 10))
	if err != nil {
		return fmt.Errorf("webhook: lookup chat user: %w", err)
	}
	if watcher == nil {
		return fmt.Errorf("webhook: unknown chat user %d: %w", cb.From.ID, errs.ErrValidation)
	}

	var ackErr error
	switch kind {
	case callbackAck:
		_, ackErr = h.inc.Acknowledge(ctx, incidentID, watcher.ID, model.AckViaChatButton)
	case callbackCancel:
		inc, getErr := h.st.GetIncident(ctx, incidentID)
		switch {
		case getErr != nil:
			ackErr = fmt.Errorf("webhook: lookup incident: %w", getErr)
		case inc == nil || inc.TravelerID != watcher.ID:
			ackErr = fmt.Errorf("webhook: cancel by non-traveler user %s: %w", watcher.ID, errs.ErrValidation)
		default:
			_, ackErr = h.inc.Cancel(ctx, incidentID, watcher.ID)
		}
	}

	if h.chat != nil {
		if answerErr := h.chat.AnswerCallback(ctx, cb.ID, "OK"); answerErr != nil {
			h.log.WarnContext(ctx, "webhook: answer callback failed", "error", answerErr)
		}
	}

	return ackErr
}

type callbackKind int

const (
	callbackAck callbackKind = iota
	callbackCancel
)

// decodeCallbackData parses the compact "v1|ack|{incident-id}" /
// "v1|cancel|{incident-id}" strings the cascade engine encodes (spec §6).
func decodeCallbackData(data string) (callbackKind, uuid.UUID, error) {
	parts := strings.SplitN(data, "|", 3)
	if len(parts) != 3 || parts[0] != "v1" {
		return 0, uuid.Nil, fmt.Errorf("unrecognized callback data format")
	}
	incidentID, err := uuid.Parse(parts[2])
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("invalid incident id: %w", err)
	}
	switch parts[1] {
	case "ack":
		return callbackAck, incidentID, nil
	case "cancel":
		return callbackCancel, incidentID, nil
	default:
		return 0, uuid.Nil, fmt.Errorf("unrecognized callback action %q", parts[1])
	}
}

// --- voice (Twilio-like) --------------------------------------------------

// Voice handles POST /webhook/voice: HMAC-signed form body carrying the
// terminal (or intermediate) status of one call attempt (spec §6, §4.9).
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))

	if !h.authVoiceSignature(r, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	callSID := r.FormValue("CallSid")
	callStatus := r.FormValue("CallStatus")
	digits := r.FormValue("Digits")
	if callSID == "" || callStatus == "" {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	providerEventID := callSID + ":" + callStatus
	fresh, err := h.inbox.Record(r.Context(), "voice", providerEventID, body)
	if err != nil {
		h.log.ErrorContext(r.Context(), "voice webhook: record inbox event failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !fresh {
		w.WriteHeader(http.StatusOK)
		return
	}

	result := mapCallStatus(callStatus, digits)
	if err := h.cascade.HandleCallResult(r.Context(), callSID, result, digits); err != nil {
		h.log.ErrorContext(r.Context(), "voice webhook: handle call result failed", "call_sid", callSID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) authVoiceSignature(r *http.Request, body []byte) bool {
	if h.cfg.VoiceHMACSecret == "" {
		return true
	}
	sig := r.Header.Get("X-Signature")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.VoiceHMACSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// mapCallStatus translates the provider's call-status vocabulary into the
// provider-agnostic model.CallResult. A human answer is only confirmed by
// DTMF "1" during gather; any other digit or no digit at all on an answered
// call is treated as answered-machine so the cascade continues ringing.
func mapCallStatus(status, digits string) model.CallResult {
	switch status {
	case "completed":
		if digits == "1" {
			return model.CallAnsweredHuman
		}
		return model.CallAnsweredMachine
	case "no-answer":
		return model.CallNoAnswer
	case "busy":
		return model.CallBusy
	case "failed", "canceled":
		return model.CallFailed
	case "ringing", "in-progress":
		return model.CallRinging
	default:
		return model.CallFailed
	}
}
