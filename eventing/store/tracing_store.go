package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"estatemgmt/eventing"
	"estatemgmt/messaging"
)

const tracerName = "estatemgmt/eventing/store"

// TracingEventStore 带追踪的事件存储装饰器
//
// 每次调用创建一个 span，并把 Context 中的追踪 ID 写入事件 Metadata：
//  1. Correlation ID 保持不变，标识整个业务流程
//  2. Causation ID 通常是触发事件的命令 ID
//  3. 未设置 Correlation ID 时使用当前 trace id
//
// 使用示例：
//
//	tracingStore := store.NewTracingEventStore(store.NewMemoryEventStore(), nil)
//	ctx = eventing.WithCorrelationID(ctx, "cor-123")
//	ctx = eventing.WithCausationID(ctx, "cmd-456")
//	_, err := tracingStore.AppendToStream(ctx, streamID, eventing.NoStream, events)
type TracingEventStore struct {
	store  IEventStore
	tracer trace.Tracer
}

// NewTracingEventStore tracer 为 nil 时使用全局 TracerProvider
func NewTracingEventStore(store IEventStore, tracer trace.Tracer) *TracingEventStore {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TracingEventStore{store: store, tracer: tracer}
}

func (s *TracingEventStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.ReadStream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("eventstore.stream_id", streamID)))
	defer span.End()

	events, err := s.store.ReadStream(ctx, streamID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("eventstore.event_count", len(events)))
	return events, nil
}

func (s *TracingEventStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.AppendToStream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("eventstore.stream_id", streamID),
			attribute.Int64("eventstore.expected_version", expectedVersion),
			attribute.Int("eventstore.event_count", len(events)),
		))
	defer span.End()

	for _, e := range events {
		injectTraceContext(ctx, e)
	}

	version, err := s.store.AppendToStream(ctx, streamID, expectedVersion, events)
	if err != nil {
		if eventing.IsConcurrencyError(err) {
			span.SetAttributes(attribute.Bool("eventstore.conflict", true))
		}
		recordError(span, err)
		return version, err
	}
	span.SetAttributes(attribute.Int64("eventstore.version", version))
	return version, nil
}

func injectTraceContext(ctx context.Context, e *eventing.Event) {
	if e == nil {
		return
	}
	correlationID := eventing.CorrelationID(ctx)
	if correlationID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			correlationID = sc.TraceID().String()
		}
	}
	if correlationID != "" {
		e.SetMetadata(messaging.MetaCorrelationID, correlationID)
	}
	if causationID := eventing.CausationID(ctx); causationID != "" {
		e.SetMetadata(messaging.MetaCausationID, causationID)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ IEventStore = (*TracingEventStore)(nil)
