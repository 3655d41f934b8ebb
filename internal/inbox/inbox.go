// Package inbox implements component C2, the idempotent ingestion gateway
// every inbound provider webhook passes through before its payload reaches a
// domain handler. Deduplication relies entirely on the database's unique
// constraint on (provider, provider_event_id); this package never keeps an
// in-memory dedupe set, so horizontally-scaled webhook handlers agree
// automatically (spec §4.2).
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/store"
)

// Inbox records inbound provider callbacks and tells the caller whether this
// delivery is fresh (process it) or a duplicate (acknowledge and discard).
type Inbox interface {
	Record(ctx context.Context, provider, providerEventID string, rawPayload []byte) (fresh bool, err error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	// SweepStale returns inbox rows recorded more than staleAfter ago whose
	// processed-at is still unset. The webhook handlers do not call
	// MarkProcessed after dispatching, so for their deliveries every row
	// older than staleAfter is returned, not only ones whose domain handler
	// never ran.
	SweepStale(ctx context.Context, staleAfter time.Duration) ([]model.InboxEvent, error)
}

type inbox struct {
	st  store.Store
	log *slog.Logger
}

func New(st store.Store, log *slog.Logger) Inbox {
	return &inbox{st: st, log: log.With("component", "inbox")}
}

func (i *inbox) Record(ctx context.Context, provider, providerEventID string, rawPayload []byte) (bool, error) {
	ev := &model.InboxEvent{
		ID:              uuid.New(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		ReceivedAt:      time.Now(),
		RawPayload:      rawPayload,
	}

	var fresh bool
	err := i.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		fresh, err = tx.RecordInboxEvent(ctx, ev)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("inbox: record: %w", err)
	}

	if !fresh {
		metrics.InboxDuplicates.WithLabelValues(provider).Inc()
		i.log.InfoContext(ctx, "duplicate inbound event discarded",
			"provider", provider, "provider_event_id", providerEventID)
	} else {
		metrics.InboxFresh.WithLabelValues(provider).Inc()
	}
	return fresh, nil
}

func (i *inbox) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return i.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkInboxProcessed(ctx, id, time.Now())
	})
}

func (i *inbox) SweepStale(ctx context.Context, staleAfter time.Duration) ([]model.InboxEvent, error) {
	var stale []model.InboxEvent
	err := i.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		stale, err = tx.SweepUnprocessedInbox(ctx, staleAfter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: sweep stale: %w", err)
	}
	if len(stale) > 0 {
		i.log.WarnContext(ctx, "stale unprocessed inbox events found", "count", len(stale))
	}
	return stale, nil
}
