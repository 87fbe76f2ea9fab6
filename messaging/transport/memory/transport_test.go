package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/messaging"
)

type recordingHandler struct {
	seen []string
	err  error
}

func (h *recordingHandler) Handle(ctx context.Context, m messaging.IMessage) error {
	h.seen = append(h.seen, m.GetID())
	return h.err
}

func (h *recordingHandler) Type() string { return "recording" }

func TestTransport_PublishRequiresStart(t *testing.T) {
	tpt := NewTransport()
	err := tpt.Publish(context.Background(), messaging.NewMessage("m1", "EstateCreatedEvent", nil))
	assert.Error(t, err)
}

func TestTransport_ExactAndWildcardHandlers(t *testing.T) {
	ctx := context.Background()
	tpt := NewTransport()
	require.NoError(t, tpt.Start(ctx))
	defer tpt.Close()

	exact := &recordingHandler{}
	all := &recordingHandler{}
	require.NoError(t, tpt.Subscribe("EstateCreatedEvent", exact))
	require.NoError(t, tpt.Subscribe(messaging.WildcardType, all))

	require.NoError(t, tpt.PublishAll(ctx, []messaging.IMessage{
		messaging.NewMessage("m1", "EstateCreatedEvent", nil),
		messaging.NewMessage("m2", "OperatorAddedToEstateEvent", nil),
	}))

	assert.Equal(t, []string{"m1"}, exact.seen)
	assert.Equal(t, []string{"m1", "m2"}, all.seen)

	stats := tpt.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.HandlerCount)
}

func TestTransport_HandlerErrorsAreJoined(t *testing.T) {
	ctx := context.Background()
	tpt := NewTransport()
	require.NoError(t, tpt.Start(ctx))

	boom := errors.New("projection down")
	failing := &recordingHandler{err: boom}
	ok := &recordingHandler{}
	require.NoError(t, tpt.Subscribe("X", failing))
	require.NoError(t, tpt.Subscribe("X", ok))

	err := tpt.Publish(ctx, messaging.NewMessage("m1", "X", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"m1"}, ok.seen, "later handlers still run")
}

func TestTransport_Unsubscribe(t *testing.T) {
	tpt := NewTransport()
	h := &recordingHandler{}
	require.NoError(t, tpt.Subscribe("X", h))
	require.NoError(t, tpt.Unsubscribe("X", h))
	assert.Error(t, tpt.Unsubscribe("X", h))
}
