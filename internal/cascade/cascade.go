// Package cascade implements component C8: for one open incident, decides
// who is contacted next, when, and how. It seeds on "incident-opened"
// (consumed from the domain event bus published by C7), drives the voice
// call-attempt retry/backoff policy, and issues the 120s reminder edits,
// per spec §4.8.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/adapter/chat"
	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/adapter/voice"
	"github.com/antonmal/protectogram/internal/domain/event"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/outbox"
	"github.com/antonmal/protectogram/internal/scheduler"
	"github.com/antonmal/protectogram/internal/store"
)

// Config carries the per-deployment defaults from spec §6's environment
// table; individual guardian links override ring timeout/retries/backoff.
type Config struct {
	DefaultRingTimeout      time.Duration
	DefaultMaxRetries       int
	DefaultRetryBackoff     time.Duration
	ReminderInterval        time.Duration
	MaxTotalRingPerGuardian time.Duration
	TravelerLocale          string

	// VoiceStatusCallbackURL is where the voice provider is told to post
	// terminal call results (spec §4.9); empty disables DTMF-ack callbacks.
	VoiceStatusCallbackURL string

	// AllowedE164Numbers/FeatureAllowOnlyWhitelist enforce the spec §6 dialing
	// gate: when the flag is set, PlaceCallAttemptHandler refuses to dial any
	// number not present in the list.
	AllowedE164Numbers      []string
	FeatureAllowOnlyWhitelist bool
}

func DefaultConfig() Config {
	return Config{
		DefaultRingTimeout:      25 * time.Second,
		DefaultMaxRetries:       2,
		DefaultRetryBackoff:     60 * time.Second,
		ReminderInterval:        120 * time.Second,
		MaxTotalRingPerGuardian: 180 * time.Second,
		TravelerLocale:          "ru-RU",
	}
}

type Engine struct {
	st        store.Store
	outboxSvc outbox.Outbox
	incSvc    incident.Service
	bus       pubsub.EventDispatcher
	chatPort  chat.Port
	voicePort voice.Port
	cfg       Config
	log       *slog.Logger
}

func New(st store.Store, outboxSvc outbox.Outbox, incSvc incident.Service, bus pubsub.EventDispatcher, chatPort chat.Port, voicePort voice.Port, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		st: st, outboxSvc: outboxSvc, incSvc: incSvc, bus: bus,
		chatPort: chatPort, voicePort: voicePort, cfg: cfg,
		log: log.With("component", "cascade"),
	}
}

// Start subscribes to the incident lifecycle topics and runs the cascade
// reactions for their lifetime. It returns once ctx is canceled.
func (e *Engine) Start(ctx context.Context) error {
	opened, err := e.bus.Subscribe(ctx, event.KindIncidentOpened.RoutingKey())
	if err != nil {
		return fmt.Errorf("cascade: subscribe opened: %w", err)
	}
	acked, err := e.bus.Subscribe(ctx, event.KindIncidentAcknowledged.RoutingKey())
	if err != nil {
		return fmt.Errorf("cascade: subscribe acknowledged: %w", err)
	}
	canceled, err := e.bus.Subscribe(ctx, event.KindIncidentCanceled.RoutingKey())
	if err != nil {
		return fmt.Errorf("cascade: subscribe canceled: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-opened:
			if !ok {
				continue
			}
			e.handleMessage(ctx, msg, e.onIncidentOpened)
		case msg, ok := <-acked:
			if !ok {
				continue
			}
			e.handleMessage(ctx, msg, e.onIncidentAcknowledged)
		case msg, ok := <-canceled:
			if !ok {
				continue
			}
			e.handleMessage(ctx, msg, e.onIncidentTerminal)
		}
	}
}

type envelope struct {
	IncidentID uuid.UUID `json:"IncidentID"`
	TravelerID uuid.UUID `json:"TravelerID"`
	ByUserID   uuid.UUID `json:"ByUserID"`
}

func (e *Engine) handleMessage(ctx context.Context, msg *message.Message, fn func(context.Context, envelope) error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		e.log.ErrorContext(ctx, "cascade: failed to decode event payload", "error", err)
		msg.Ack()
		return
	}
	if err := fn(ctx, env); err != nil {
		e.log.ErrorContext(ctx, "cascade: event handler failed", "error", err)
	}
	msg.Ack()
}

// --- seeding -----------------------------------------------------------

func (e *Engine) onIncidentOpened(ctx context.Context, env envelope) error {
	return e.SeedCascade(ctx, env.IncidentID, env.TravelerID)
}

// SeedCascade loads active guardian links for the traveler sorted by
// (priority rank, link created-at) and, per guardian, enqueues the initial
// chat alert and/or schedules the first call attempt (spec §4.8 Seeding).
func (e *Engine) SeedCascade(ctx context.Context, incidentID, travelerID uuid.UUID) error {
	links, err := e.st.ActiveGuardianLinks(ctx, travelerID)
	if err != nil {
		return fmt.Errorf("cascade: seed: load guardian links: %w", err)
	}

	for _, link := range links {
		if link.ChatEnabled {
			if err := e.sendInitialChatAlert(ctx, incidentID, link); err != nil {
				e.log.ErrorContext(ctx, "cascade: initial chat alert failed", "incident_id", incidentID, "watcher_id", link.WatcherID, "error", err)
			}
		}
		if link.CallEnabled {
			if err := e.scheduleCallAttempt(ctx, incidentID, link, 1, time.Now()); err != nil {
				e.log.ErrorContext(ctx, "cascade: schedule first call attempt failed", "incident_id", incidentID, "watcher_id", link.WatcherID, "error", err)
			}
		}
	}

	return e.scheduleReminder(ctx, incidentID, 1, time.Now().Add(e.cfg.ReminderInterval))
}

func (e *Engine) sendInitialChatAlert(ctx context.Context, incidentID uuid.UUID, link model.GuardianLink) error {
	if err := e.ensureAlert(ctx, incidentID, link.WatcherID, model.ChannelChat); err != nil {
		return err
	}

	watcher, err := e.st.GetUser(ctx, link.WatcherID)
	if err != nil || watcher == nil {
		return fmt.Errorf("cascade: lookup watcher: %w", err)
	}

	key := fmt.Sprintf("chat:%s:%s:alert", incidentID, link.WatcherID)
	req := chat.SendMessageRequest{
		ChatProviderID: watcher.ChatProviderID,
		Text:           "Тревога! Срочно свяжитесь с путешественником.",
		Buttons: []chat.InlineButton{
			{Text: "I take responsibility", CallbackData: AckCallbackData(incidentID)},
		},
	}
	payload, _ := json.Marshal(req)

	_, _, err = e.outboxSvc.Send(ctx, model.ChannelChat, key, payload, func(ctx context.Context) (string, error) {
		res, err := e.chatPort.Send(ctx, req)
		if err != nil {
			return "", err
		}
		return res.ProviderMessageID, nil
	})
	return err
}

func (e *Engine) ensureAlert(ctx context.Context, incidentID, audienceID uuid.UUID, channel model.AlertChannel) error {
	existing, err := e.st.GetAlert(ctx, incidentID, audienceID, channel)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAlert(ctx, &model.Alert{
			ID:             uuid.New(),
			IncidentID:     incidentID,
			AudienceUserID: audienceID,
			Channel:        channel,
			Status:         model.AlertPending,
		})
	})
}

// AckCallbackData encodes the compact callback-data string spec §6
// describes: "v1|ack|{incident-id}", bounded to 64 bytes.
func AckCallbackData(incidentID uuid.UUID) string {
	return fmt.Sprintf("v1|ack|%s", incidentID)
}

// CancelCallbackData is the traveler-side cancel counterpart.
func CancelCallbackData(incidentID uuid.UUID) string {
	return fmt.Sprintf("v1|cancel|%s", incidentID)
}

// --- call attempt scheduling & scheduler handlers -----------------------

type placeCallPayload struct {
	GuardianLinkID uuid.UUID
	WatcherID      uuid.UUID
	AttemptNumber  int
}

type reminderPayload struct {
	ReminderNumber int
}

func (e *Engine) scheduleCallAttempt(ctx context.Context, incidentID uuid.UUID, link model.GuardianLink, attemptNumber int, runAt time.Time) error {
	// spec §4.8/P5: at most max-retries attempts total per guardian alert.
	if attemptNumber > link.MaxRetries {
		return e.haltAlert(ctx, incidentID, link.WatcherID, "max retries exhausted")
	}

	payload, err := json.Marshal(placeCallPayload{GuardianLinkID: link.ID, WatcherID: link.WatcherID, AttemptNumber: attemptNumber})
	if err != nil {
		return err
	}

	return e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateScheduledAction(ctx, &model.ScheduledAction{
			ID:         uuid.New(),
			IncidentID: incidentID,
			ActionType: model.ActionPlaceCallAttempt,
			RunAt:      runAt,
			Payload:    payload,
		})
	})
}

// PlaceCallAttemptHandler is the scheduler.Handler for action_type=
// place_call_attempt. No-op if the incident has left open (spec §4.4: "a
// handler that fires after the incident has left open is a no-op").
func (e *Engine) PlaceCallAttemptHandler(ctx context.Context, action model.ScheduledAction) error {
	var p placeCallPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return fmt.Errorf("cascade: decode place-call payload: %w", err)
	}

	inc, err := e.st.GetIncident(ctx, action.IncidentID)
	if err != nil {
		return err
	}
	if inc == nil || !inc.IsOpen() {
		return nil
	}

	link, err := e.findGuardianLink(ctx, inc.TravelerID, p.WatcherID)
	if err != nil || link == nil {
		return fmt.Errorf("cascade: place-call: guardian link lookup: %w", err)
	}

	if err := e.ensureAlert(ctx, action.IncidentID, p.WatcherID, model.ChannelVoice); err != nil {
		return err
	}

	watcher, err := e.st.GetUser(ctx, p.WatcherID)
	if err != nil || watcher == nil {
		return fmt.Errorf("cascade: place-call: lookup watcher: %w", err)
	}

	if e.cfg.FeatureAllowOnlyWhitelist && !isWhitelisted(watcher.PhoneE164, e.cfg.AllowedE164Numbers) {
		e.log.Warn("cascade: refusing to dial non-whitelisted number", "incident_id", action.IncidentID, "watcher_id", p.WatcherID)
		return e.haltAlert(ctx, action.IncidentID, p.WatcherID, "number not in whitelist")
	}

	alert, err := e.st.GetAlert(ctx, action.IncidentID, p.WatcherID, model.ChannelVoice)
	if err != nil || alert == nil {
		return fmt.Errorf("cascade: place-call: lookup alert: %w", err)
	}

	attempt := &model.CallAttempt{
		ID:            uuid.New(),
		AlertID:       alert.ID,
		AttemptNumber: p.AttemptNumber,
		Result:        model.CallPending,
		StartedAt:     time.Now(),
	}
	if err := e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateCallAttempt(ctx, attempt)
	}); err != nil {
		return fmt.Errorf("cascade: place-call: create attempt: %w", err)
	}

	key := fmt.Sprintf("voice:%s:%s:attempt:%d", action.IncidentID, p.WatcherID, p.AttemptNumber)
	instructions := []voice.Instruction{
		{Kind: voice.Speak, Text: fmt.Sprintf("Тревога! Срочно свяжитесь с %s. Нажмите 1 для подтверждения.", watcher.DisplayName)},
		{Kind: voice.Gather, GatherDigits: []string{"1"}, GatherTimeout: int(ringTimeout(link, e.cfg).Seconds())},
		{Kind: voice.Hangup},
	}
	req := voice.PlaceCallRequest{
		PhoneE164:         watcher.PhoneE164,
		Instructions:      instructions,
		StatusCallbackURL: e.cfg.VoiceStatusCallbackURL,
	}
	payload, _ := json.Marshal(req)

	providerCallID, _, err := e.outboxSvc.Send(ctx, model.ChannelVoice, key, payload, func(ctx context.Context) (string, error) {
		res, err := e.voicePort.PlaceCall(ctx, req)
		if err != nil {
			return "", err
		}
		return res.ProviderCallID, nil
	})
	if err != nil {
		return fmt.Errorf("cascade: place-call: provider call: %w", err)
	}

	attempt.ProviderCallID = providerCallID
	return e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateCallAttempt(ctx, attempt)
	})
}

// isWhitelisted reports whether phone is present in allowed, per spec §6's
// ALLOWED_E164_NUMBERS dialing gate.
func isWhitelisted(phone string, allowed []string) bool {
	for _, a := range allowed {
		if a == phone {
			return true
		}
	}
	return false
}

func ringTimeout(link *model.GuardianLink, cfg Config) time.Duration {
	if link.RingTimeoutSeconds > 0 {
		return time.Duration(link.RingTimeoutSeconds) * time.Second
	}
	return cfg.DefaultRingTimeout
}

func (e *Engine) findGuardianLink(ctx context.Context, travelerID, watcherID uuid.UUID) (*model.GuardianLink, error) {
	links, err := e.st.ActiveGuardianLinks(ctx, travelerID)
	if err != nil {
		return nil, err
	}
	for i := range links {
		if links[i].WatcherID == watcherID {
			return &links[i], nil
		}
	}
	return nil, nil
}

// --- call result handling (voice webhook entry point) -------------------

// HandleCallResult is invoked directly by the voice webhook handler (C9)
// once it has classified the provider's callback into a terminal
// model.CallResult. On answered-human + DTMF "1" it synthesizes an
// acknowledgment (processed as §4.7 acknowledge); otherwise it records the
// result and either schedules the next attempt or halts the alert
// (spec §4.8 call-attempt policy).
func (e *Engine) HandleCallResult(ctx context.Context, providerCallID string, result model.CallResult, dtmf string) error {
	attempt, err := e.st.GetCallAttemptByProviderCallID(ctx, providerCallID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("cascade: handle call result: unknown provider call id %q", providerCallID)
	}

	// Non-terminal statuses (ringing, in-progress, the call not yet having
	// reached an outcome) must not touch the attempt: scheduling attempt n+1
	// while attempt n is still live would violate invariant 2 and the §5
	// "attempt n+1 not scheduled until attempt n reaches a terminal result"
	// guarantee.
	if !result.IsTerminal() {
		return nil
	}

	now := time.Now()
	attempt.Result = result
	attempt.DTMFReceived = dtmf
	attempt.EndedAt = &now
	if err := e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateCallAttempt(ctx, attempt)
	}); err != nil {
		return err
	}

	alerts, err := e.st.GetAlertByID(ctx, attempt.AlertID)
	if err != nil || alerts == nil {
		return fmt.Errorf("cascade: handle call result: lookup alert: %w", err)
	}

	inc, err := e.st.GetIncident(ctx, alerts.IncidentID)
	if err != nil {
		return err
	}
	if inc == nil || !inc.IsOpen() {
		return nil
	}

	if result == model.CallAnsweredHuman && dtmf == "1" {
		_, err := e.incSvc.Acknowledge(ctx, inc.ID, alerts.AudienceUserID, model.AckViaDTMF)
		return err
	}

	link, err := e.findGuardianLink(ctx, inc.TravelerID, alerts.AudienceUserID)
	if err != nil || link == nil {
		return fmt.Errorf("cascade: handle call result: guardian link lookup: %w", err)
	}

	// spec §4.8/P5: "if attempts < max-retries, schedule attempt n+1;
	// otherwise mark the alert halted" — attempts so far is AttemptNumber.
	if attempt.AttemptNumber >= link.MaxRetries {
		return e.haltAlert(ctx, inc.ID, alerts.AudienceUserID, "retries exhausted")
	}

	totalRing, err := e.totalRingDuration(ctx, attempt.AlertID)
	if err != nil {
		return fmt.Errorf("cascade: handle call result: total ring duration: %w", err)
	}
	if ringCap := e.cfg.MaxTotalRingPerGuardian; ringCap > 0 && totalRing >= ringCap {
		return e.haltAlert(ctx, inc.ID, alerts.AudienceUserID, "total ring time cap exceeded")
	}

	backoff := time.Duration(link.RetryBackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = e.cfg.DefaultRetryBackoff
	}
	return e.scheduleCallAttempt(ctx, inc.ID, *link, attempt.AttemptNumber+1, now.Add(backoff))
}

// totalRingDuration sums the wall-clock ring time of every attempt made so
// far under one alert, enforcing the global total-ring-cap per guardian
// (spec §4.8, P5) across retries rather than per-attempt.
func (e *Engine) totalRingDuration(ctx context.Context, alertID uuid.UUID) (time.Duration, error) {
	attempts, err := e.st.CallAttemptsForAlert(ctx, alertID)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, a := range attempts {
		if a.EndedAt != nil {
			total += a.EndedAt.Sub(a.StartedAt)
		}
	}
	return total, nil
}

func (e *Engine) haltAlert(ctx context.Context, incidentID, audienceID uuid.UUID, reason string) error {
	alert, err := e.st.GetAlert(ctx, incidentID, audienceID, model.ChannelVoice)
	if err != nil {
		return err
	}
	if alert == nil {
		return nil
	}
	alert.Status = model.AlertHalted
	alert.LastError = reason
	if err := e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateAlert(ctx, alert)
	}); err != nil {
		return err
	}
	metrics.CascadeAlertsHalted.WithLabelValues(string(alert.Channel)).Inc()
	return nil
}

// --- reminders -----------------------------------------------------------

func (e *Engine) scheduleReminder(ctx context.Context, incidentID uuid.UUID, n int, runAt time.Time) error {
	payload, err := json.Marshal(reminderPayload{ReminderNumber: n})
	if err != nil {
		return err
	}
	return e.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateScheduledAction(ctx, &model.ScheduledAction{
			ID:         uuid.New(),
			IncidentID: incidentID,
			ActionType: model.ActionSendReminder,
			RunAt:      runAt,
			Payload:    payload,
		})
	})
}

// SendReminderHandler is the scheduler.Handler for action_type=
// send_reminder: re-pings unacknowledged guardians by editing their
// original chat message in place with an updated counter, using a distinct
// idempotency key per reminder number (spec §4.8 Reminder policy).
func (e *Engine) SendReminderHandler(ctx context.Context, action model.ScheduledAction) error {
	var p reminderPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return fmt.Errorf("cascade: decode reminder payload: %w", err)
	}

	inc, err := e.st.GetIncident(ctx, action.IncidentID)
	if err != nil {
		return err
	}
	if inc == nil || !inc.IsOpen() {
		return nil
	}

	alerts, err := e.alertsForIncidentChat(ctx, action.IncidentID)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if alert.Status == model.AlertDelivered {
			continue
		}
		watcher, err := e.st.GetUser(ctx, alert.AudienceUserID)
		if err != nil || watcher == nil {
			continue
		}

		key := fmt.Sprintf("chat:%s:%s:reminder:%d", action.IncidentID, alert.AudienceUserID, p.ReminderNumber)
		req := chat.SendMessageRequest{
			ChatProviderID: watcher.ChatProviderID,
			Text:           fmt.Sprintf("Напоминание #%d: инцидент всё ещё не подтверждён.", p.ReminderNumber),
			Buttons: []chat.InlineButton{
				{Text: "I take responsibility", CallbackData: AckCallbackData(action.IncidentID)},
			},
		}
		if orig, err := e.st.GetOutboxByKey(ctx, fmt.Sprintf("chat:%s:%s:alert", action.IncidentID, alert.AudienceUserID)); err == nil && orig != nil {
			req.EditMessageID = orig.ProviderMessageID
		}
		payload, _ := json.Marshal(req)
		if _, _, err := e.outboxSvc.Send(ctx, model.ChannelChat, key, payload, func(ctx context.Context) (string, error) {
			res, err := e.chatPort.Send(ctx, req)
			if err != nil {
				return "", err
			}
			return res.ProviderMessageID, nil
		}); err != nil {
			e.log.ErrorContext(ctx, "cascade: reminder send failed", "incident_id", action.IncidentID, "watcher_id", alert.AudienceUserID, "error", err)
		}
	}

	return e.scheduleReminder(ctx, action.IncidentID, p.ReminderNumber+1, time.Now().Add(e.cfg.ReminderInterval))
}

func (e *Engine) alertsForIncidentChat(ctx context.Context, incidentID uuid.UUID) ([]model.Alert, error) {
	all, err := e.allAlerts(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	var out []model.Alert
	for _, a := range all {
		if a.Channel == model.ChannelChat {
			out = append(out, a)
		}
	}
	return out, nil
}

func (e *Engine) allAlerts(ctx context.Context, incidentID uuid.UUID) ([]model.Alert, error) {
	return e.st.AlertsForIncident(ctx, incidentID)
}

// --- acknowledgment / cancellation fan-out -------------------------------

func (e *Engine) onIncidentAcknowledged(ctx context.Context, env envelope) error {
	return e.fanOutTerminal(ctx, env.IncidentID, "Подтверждено. Инцидент обработан.")
}

func (e *Engine) onIncidentTerminal(ctx context.Context, env envelope) error {
	return e.fanOutTerminal(ctx, env.IncidentID, "Инцидент отменён путешественником.")
}

// fanOutTerminal implements the "handled" edit fan-out of spec §4.7/§4.8:
// the initial alert message of every guardian with a chat alert is edited in
// place (a new message is sent when no original message id is recorded), and
// any pending call attempts are hung up best-effort.
func (e *Engine) fanOutTerminal(ctx context.Context, incidentID uuid.UUID, text string) error {
	alerts, err := e.allAlerts(ctx, incidentID)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		switch alert.Channel {
		case model.ChannelChat:
			watcher, err := e.st.GetUser(ctx, alert.AudienceUserID)
			if err != nil || watcher == nil {
				continue
			}
			req := chat.SendMessageRequest{ChatProviderID: watcher.ChatProviderID, Text: text}
			if orig, err := e.st.GetOutboxByKey(ctx, fmt.Sprintf("chat:%s:%s:alert", incidentID, alert.AudienceUserID)); err == nil && orig != nil {
				req.EditMessageID = orig.ProviderMessageID
			}
			if _, err := e.chatPort.Send(ctx, req); err != nil {
				e.log.WarnContext(ctx, "cascade: handled-edit failed", "incident_id", incidentID, "watcher_id", alert.AudienceUserID, "error", err)
			}
		case model.ChannelVoice:
			pending, err := e.st.PendingCallAttempt(ctx, alert.ID)
			if err != nil || pending == nil {
				continue
			}
			// Transient hangup errors are swallowed per spec §4.7: the call
			// will time out naturally.
			_ = e.voicePort.Hangup(ctx, pending.ProviderCallID)
		}
	}

	return nil
}

var _ scheduler.Handler = (*Engine)(nil).PlaceCallAttemptHandler
var _ scheduler.Handler = (*Engine)(nil).SendReminderHandler
