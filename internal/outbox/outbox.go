// Package outbox implements component C3: exactly-once-effect delivery of
// outbound provider sends. Every call site supplies an idempotency key; a
// duplicate Send for a key already recorded returns the stored result
// without invoking the provider again (spec §4.3, invariant 4). Provider
// calls are wrapped in a per-provider sony/gobreaker circuit breaker so an
// outage fails fast into the retry-eligible outbox path instead of holding
// outbound HTTP slots open (SPEC_FULL.md §4.2/4.3), and bounded by a
// per-provider buffered-channel semaphore capping concurrent outbound calls
// (spec §5, default 8).
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/store"
)

// Sender is the narrow contract dispatch uses for one channel's provider
// call, closed over the concrete chat/voice request in the caller.
type Sender func(ctx context.Context) (providerMessageID string, err error)

// Outbox is the outbound-side counterpart to Inbox: it makes "invoke this
// provider for this idempotency key" an at-most-once-effect operation.
type Outbox interface {
	Send(ctx context.Context, channel model.AlertChannel, idempotencyKey string, payload []byte, send Sender) (providerMessageID string, alreadySent bool, err error)
}

type outbox struct {
	st  store.Store
	log *slog.Logger

	chatBreaker  *gobreaker.CircuitBreaker
	voiceBreaker *gobreaker.CircuitBreaker

	chatSem  chan struct{}
	voiceSem chan struct{}
}

// Config bounds per-provider outbound concurrency (spec §5 default 8).
type Config struct {
	ChatConcurrency  int
	VoiceConcurrency int
}

func DefaultConfig() Config {
	return Config{ChatConcurrency: 8, VoiceConcurrency: 8}
}

func New(st store.Store, log *slog.Logger, cfg Config) Outbox {
	if cfg.ChatConcurrency <= 0 {
		cfg.ChatConcurrency = 8
	}
	if cfg.VoiceConcurrency <= 0 {
		cfg.VoiceConcurrency = 8
	}

	return &outbox{
		st:  st,
		log: log.With("component", "outbox"),

		chatBreaker:  newBreaker("chat"),
		voiceBreaker: newBreaker("voice"),

		chatSem:  make(chan struct{}, cfg.ChatConcurrency),
		voiceSem: make(chan struct{}, cfg.VoiceConcurrency),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func (o *outbox) Send(ctx context.Context, channel model.AlertChannel, idempotencyKey string, payload []byte, send Sender) (string, bool, error) {
	msg := &model.OutboxMessage{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		Channel:        channel,
		Payload:        payload,
		Status:         model.OutboxPending,
		CreatedAt:      time.Now(),
	}

	var fresh bool
	var existing *model.OutboxMessage
	err := o.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		fresh, existing, err = tx.InsertOutboxPending(ctx, msg)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("outbox: insert pending: %w", err)
	}

	if !fresh {
		if existing.Status == model.OutboxSent {
			metrics.OutboxSends.WithLabelValues(string(channel), "already_sent").Inc()
			o.log.InfoContext(ctx, "outbox send already recorded", "idempotency_key", idempotencyKey, "status", existing.Status)
			return existing.ProviderMessageID, true, nil
		}
		// Status is pending or failed: the provider was never successfully
		// invoked for this key, so spec §4.3 step 2 requires retrying it
		// rather than treating the row as done.
		o.log.InfoContext(ctx, "outbox retrying previously unsent message", "idempotency_key", idempotencyKey, "status", existing.Status)
	}

	sem, breaker := o.resources(channel)

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return "", false, ctx.Err()
	}

	result, err := breaker.Execute(func() (any, error) {
		return send(ctx)
	})
	if err != nil {
		markErr := o.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.MarkOutboxFailed(ctx, idempotencyKey, err.Error())
		})
		if markErr != nil {
			o.log.ErrorContext(ctx, "outbox: failed to record send failure", "error", markErr)
		}
		metrics.OutboxSends.WithLabelValues(string(channel), "failed").Inc()
		return "", false, fmt.Errorf("outbox: send via %s: %w", channel, errs.ErrTransientProvider)
	}

	providerMessageID, _ := result.(string)
	if err := o.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkOutboxSent(ctx, idempotencyKey, providerMessageID)
	}); err != nil {
		return "", false, fmt.Errorf("outbox: mark sent: %w", err)
	}

	metrics.OutboxSends.WithLabelValues(string(channel), "sent").Inc()
	return providerMessageID, false, nil
}

func (o *outbox) resources(channel model.AlertChannel) (chan struct{}, *gobreaker.CircuitBreaker) {
	if channel == model.ChannelVoice {
		return o.voiceSem, o.voiceBreaker
	}
	return o.chatSem, o.chatBreaker
}
