package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	published     []IMessage
	batch         [][]IMessage
	subscribed    map[string]int
	unsubscribed  map[string]int
	shouldError   error
	orderRecorder *[]string
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		subscribed:   make(map[string]int),
		unsubscribed: make(map[string]int),
	}
}

func (m *mockTransport) Publish(ctx context.Context, message IMessage) error {
	if m.orderRecorder != nil {
		*m.orderRecorder = append(*m.orderRecorder, "transport")
	}
	m.published = append(m.published, message)
	return m.shouldError
}

func (m *mockTransport) PublishAll(ctx context.Context, messages []IMessage) error {
	m.batch = append(m.batch, messages)
	return m.shouldError
}

func (m *mockTransport) Subscribe(messageType string, handler IMessageHandler) error {
	m.subscribed[messageType]++
	return nil
}

func (m *mockTransport) Unsubscribe(messageType string, handler IMessageHandler) error {
	m.unsubscribed[messageType]++
	return nil
}

func (m *mockTransport) Start(ctx context.Context) error { return nil }

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) Stats() TransportStats { return TransportStats{} }

type recordingMiddleware struct {
	name  string
	order *[]string
	err   error
}

func (mw recordingMiddleware) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	*mw.order = append(*mw.order, mw.name)
	if mw.err != nil {
		return mw.err
	}
	return next(ctx, message)
}

func (mw recordingMiddleware) Name() string { return mw.name }

type noopHandler struct{}

func (noopHandler) Handle(ctx context.Context, message IMessage) error { return nil }
func (noopHandler) Type() string                                       { return "noop" }

func TestMessageBus_PublishWithMiddleware(t *testing.T) {
	order := make([]string, 0, 3)
	transport := newMockTransport()
	transport.orderRecorder = &order

	bus := NewMessageBus(transport)
	bus.Use(recordingMiddleware{name: "first", order: &order})
	bus.Use(recordingMiddleware{name: "second", order: &order})

	require.NoError(t, bus.Publish(context.Background(), NewMessage("m1", "EstateCreatedEvent", nil)))
	assert.Equal(t, []string{"first", "second", "transport"}, order)
	assert.Len(t, transport.published, 1)
}

func TestMessageBus_MiddlewareErrorStopsPublish(t *testing.T) {
	order := make([]string, 0, 2)
	transport := newMockTransport()
	bus := NewMessageBus(transport)
	boom := errors.New("rejected")
	bus.Use(recordingMiddleware{name: "guard", order: &order, err: boom})

	err := bus.Publish(context.Background(), NewMessage("m1", "X", nil))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, transport.published)
}

func TestMessageBus_PublishAllBatches(t *testing.T) {
	order := make([]string, 0, 2)
	transport := newMockTransport()
	bus := NewMessageBus(transport)
	bus.Use(recordingMiddleware{name: "mw", order: &order})

	msgs := []IMessage{NewMessage("m1", "X", nil), NewMessage("m2", "Y", nil)}
	require.NoError(t, bus.PublishAll(context.Background(), msgs))

	require.Len(t, transport.batch, 1)
	assert.Len(t, transport.batch[0], 2)
	assert.Equal(t, []string{"mw", "mw"}, order)

	require.NoError(t, bus.PublishAll(context.Background(), nil))
	assert.Len(t, transport.batch, 1)
}

func TestMessageBus_TransportErrorPropagates(t *testing.T) {
	transport := newMockTransport()
	transport.shouldError = errors.New("broker down")
	bus := NewMessageBus(transport)

	err := bus.PublishAll(context.Background(), []IMessage{NewMessage("m1", "X", nil)})
	assert.ErrorIs(t, err, transport.shouldError)
}

func TestMessageBus_SubscribeDelegates(t *testing.T) {
	transport := newMockTransport()
	bus := NewMessageBus(transport)

	require.NoError(t, bus.Subscribe(context.Background(), "X", noopHandler{}))
	require.NoError(t, bus.Unsubscribe(context.Background(), "X", noopHandler{}))
	assert.Equal(t, 1, transport.subscribed["X"])
	assert.Equal(t, 1, transport.unsubscribed["X"])
	assert.Same(t, transport, bus.GetTransport())
}

func TestCodec_RoundTripKeepsRawPayload(t *testing.T) {
	msg := NewMessage("m1", "EstateCreatedEvent", map[string]any{"estateName": "Demo"})
	msg.SetMetadata(MetaStreamID, "Estate-1")

	data, err := EncodeJSON(msg)
	require.NoError(t, err)

	decoded, err := DecodeJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "m1", decoded.ID)
	assert.Equal(t, "EstateCreatedEvent", decoded.Type)
	assert.Equal(t, "Estate-1", decoded.Metadata[MetaStreamID])
	assert.JSONEq(t, `{"estateName":"Demo"}`, string(decoded.Payload.(json.RawMessage)))
	assert.Equal(t, msg.Timestamp.UnixNano(), decoded.Timestamp.UnixNano())
}
