package inbox_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/inbox"
	"github.com/antonmal/protectogram/internal/storetest"
)

func newInbox() inbox.Inbox {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return inbox.New(storetest.New(), log)
}

func TestRecord_FirstDeliveryIsFresh(t *testing.T) {
	ib := newInbox()
	fresh, err := ib.Record(context.Background(), "telegram", "evt-1", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, fresh)
}

// The second Record call for the same (provider, providerEventID) pair must
// report fresh=false without erroring, since at-least-once provider delivery
// is the whole reason this package exists (spec invariant 3).
func TestRecord_DuplicateDeliveryIsNotFresh(t *testing.T) {
	ib := newInbox()
	ctx := context.Background()

	_, err := ib.Record(ctx, "telegram", "evt-1", []byte(`{}`))
	require.NoError(t, err)

	fresh, err := ib.Record(ctx, "telegram", "evt-1", []byte(`{"different":"payload"}`))
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestRecord_SameEventIDDifferentProviderIsFresh(t *testing.T) {
	ib := newInbox()
	ctx := context.Background()

	_, err := ib.Record(ctx, "telegram", "evt-1", []byte(`{}`))
	require.NoError(t, err)

	fresh, err := ib.Record(ctx, "twilio", "evt-1", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestSweepStale_OnlyReturnsUnprocessedOlderThanCutoff(t *testing.T) {
	st := storetest.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ib := inbox.New(st, log)
	ctx := context.Background()

	_, err := ib.Record(ctx, "telegram", "evt-old", []byte(`{}`))
	require.NoError(t, err)
	for _, ev := range st.InboxEvents {
		ev.ReceivedAt = time.Now().Add(-time.Hour)
	}

	_, err = ib.Record(ctx, "telegram", "evt-new", []byte(`{}`))
	require.NoError(t, err)

	stale, err := ib.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "evt-old", stale[0].ProviderEventID)
}

func TestMarkProcessed_RemovesEventFromStaleSweep(t *testing.T) {
	st := storetest.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ib := inbox.New(st, log)
	ctx := context.Background()

	_, err := ib.Record(ctx, "telegram", "evt-1", []byte(`{}`))
	require.NoError(t, err)

	for _, ev := range st.InboxEvents {
		ev.ReceivedAt = time.Now().Add(-time.Hour)
		require.NoError(t, ib.MarkProcessed(ctx, ev.ID))
	}

	stale, err := ib.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Empty(t, stale)
}
