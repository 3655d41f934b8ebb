package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/outbox"
	"github.com/antonmal/protectogram/internal/storetest"
)

func newOutbox() outbox.Outbox {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return outbox.New(storetest.New(), log, outbox.DefaultConfig())
}

func TestSend_InvokesProviderOnFirstCall(t *testing.T) {
	ob := newOutbox()
	calls := 0
	id, already, err := ob.Send(context.Background(), model.ChannelChat, "key-1", []byte(`{}`), func(ctx context.Context) (string, error) {
		calls++
		return "provider-msg-1", nil
	})
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, "provider-msg-1", id)
	require.Equal(t, 1, calls)
}

// Spec invariant 4: a duplicate Send for a key already recorded returns the
// stored result without invoking the provider a second time.
func TestSend_DuplicateKeyNeverCallsProviderAgain(t *testing.T) {
	ob := newOutbox()
	ctx := context.Background()
	calls := 0
	sender := func(ctx context.Context) (string, error) {
		calls++
		return "provider-msg-1", nil
	}

	_, _, err := ob.Send(ctx, model.ChannelChat, "key-1", []byte(`{}`), sender)
	require.NoError(t, err)

	id, already, err := ob.Send(ctx, model.ChannelChat, "key-1", []byte(`{}`), sender)
	require.NoError(t, err)
	require.True(t, already)
	require.Equal(t, "provider-msg-1", id)
	require.Equal(t, 1, calls)
}

func TestSend_ProviderErrorWrapsAsTransient(t *testing.T) {
	ob := newOutbox()
	_, _, err := ob.Send(context.Background(), model.ChannelVoice, "key-2", []byte(`{}`), func(ctx context.Context) (string, error) {
		return "", errors.New("provider unavailable")
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrTransientProvider)
}

func TestSend_DifferentChannelsUseIndependentConcurrencyLimits(t *testing.T) {
	ob := newOutbox()
	ctx := context.Background()

	_, _, err := ob.Send(ctx, model.ChannelChat, "chat-key", []byte(`{}`), func(ctx context.Context) (string, error) {
		return "chat-id", nil
	})
	require.NoError(t, err)

	_, _, err = ob.Send(ctx, model.ChannelVoice, "voice-key", []byte(`{}`), func(ctx context.Context) (string, error) {
		return "voice-id", nil
	})
	require.NoError(t, err)
}
