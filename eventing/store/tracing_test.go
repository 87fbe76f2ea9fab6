package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"estatemgmt/eventing"
	"estatemgmt/messaging"
)

func newRecordingTracer() (*tracetest.SpanRecorder, *TracingEventStore) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewTracingEventStore(NewMemoryEventStore(), tp.Tracer("test"))
}

func TestTracingStore_InjectsTraceIDs(t *testing.T) {
	sr, s := newRecordingTracer()
	ctx := eventing.WithCorrelationID(context.Background(), "cor-test-123")
	ctx = eventing.WithCausationID(ctx, "cmd-789")

	id := uuid.New()
	streamID := eventing.StreamID("Estate", id)
	events := newEvents(id, "EstateCreatedEvent", "OperatorAddedToEstateEvent")
	_, err := s.AppendToStream(ctx, streamID, eventing.NoStream, events)
	require.NoError(t, err)

	for _, e := range events {
		assert.Equal(t, "cor-test-123", e.Metadata[messaging.MetaCorrelationID])
		assert.Equal(t, "cmd-789", e.Metadata[messaging.MetaCausationID])
	}

	loaded, err := s.ReadStream(ctx, streamID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "cor-test-123", loaded[1].Metadata[messaging.MetaCorrelationID])

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "eventstore.AppendToStream", spans[0].Name())
	assert.Equal(t, "eventstore.ReadStream", spans[1].Name())
}

func TestTracingStore_FallsBackToTraceID(t *testing.T) {
	sr, s := newRecordingTracer()
	id := uuid.New()
	events := newEvents(id, "EstateCreatedEvent")

	_, err := s.AppendToStream(context.Background(), eventing.StreamID("Estate", id), eventing.NoStream, events)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), events[0].Metadata[messaging.MetaCorrelationID])
}

func TestTracingStore_RecordsConflict(t *testing.T) {
	sr, s := newRecordingTracer()
	ctx := context.Background()
	id := uuid.New()
	streamID := eventing.StreamID("Estate", id)

	_, err := s.AppendToStream(ctx, streamID, eventing.NoStream, newEvents(id, "A"))
	require.NoError(t, err)
	_, err = s.AppendToStream(ctx, streamID, eventing.NoStream, newEvents(id, "B"))
	require.True(t, eventing.IsConcurrencyError(err))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

type failingPublisher struct {
	calls int
	err   error
}

func (p *failingPublisher) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	p.calls++
	return p.err
}

func TestPublishingStore_PublishFailureDoesNotFailAppend(t *testing.T) {
	ctx := context.Background()
	pub := &failingPublisher{err: errors.New("broker down")}
	s := NewPublishingEventStore(NewMemoryEventStore(), pub, nil)
	id := uuid.New()

	version, err := s.AppendToStream(ctx, eventing.StreamID("Estate", id), eventing.NoStream, newEvents(id, "A", "B"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, 1, pub.calls)
}

func TestPublishingStore_NoPublishOnConflict(t *testing.T) {
	ctx := context.Background()
	pub := &failingPublisher{}
	s := NewPublishingEventStore(NewMemoryEventStore(), pub, nil)
	id := uuid.New()
	streamID := eventing.StreamID("Estate", id)

	_, err := s.AppendToStream(ctx, streamID, eventing.NoStream, newEvents(id, "A"))
	require.NoError(t, err)
	_, err = s.AppendToStream(ctx, streamID, eventing.NoStream, newEvents(id, "B"))
	require.Error(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestPublishingStore_DeliversThroughBus(t *testing.T) {
	ctx := context.Background()
	var received []messaging.IMessage
	bus := messaging.NewMessageBus(&captureTransport{received: &received})
	s := NewPublishingEventStore(NewMemoryEventStore(), bus, nil)
	id := uuid.New()

	_, err := s.AppendToStream(ctx, eventing.StreamID("Estate", id), eventing.NoStream, newEvents(id, "EstateCreatedEvent"))
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "EstateCreatedEvent", received[0].GetType())
	assert.Equal(t, int64(0), received[0].GetMetadata()[messaging.MetaVersion])
	assert.Equal(t, "Estate", received[0].GetMetadata()[messaging.MetaAggregateType])
}

type captureTransport struct {
	received *[]messaging.IMessage
}

func (c *captureTransport) Publish(ctx context.Context, m messaging.IMessage) error {
	*c.received = append(*c.received, m)
	return nil
}

func (c *captureTransport) PublishAll(ctx context.Context, ms []messaging.IMessage) error {
	*c.received = append(*c.received, ms...)
	return nil
}

func (c *captureTransport) Subscribe(string, messaging.IMessageHandler) error   { return nil }
func (c *captureTransport) Unsubscribe(string, messaging.IMessageHandler) error { return nil }
func (c *captureTransport) Start(context.Context) error                         { return nil }
func (c *captureTransport) Close() error                                        { return nil }
func (c *captureTransport) Stats() messaging.TransportStats                     { return messaging.TransportStats{} }
