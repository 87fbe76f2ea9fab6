// Package middleware 消息总线中间件
package middleware

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"estatemgmt/eventing"
	"estatemgmt/messaging"
)

// KeyTraceID 发布消息元数据中的 trace id
const KeyTraceID = "trace_id"

// TracingMiddleware 发布前补齐链路字段
//
// 规则：
//   - correlation_id / causation_id 已存在时保持不变
//   - 缺失时依次取 Context 中的值、当前 span 的 trace id、消息 ID
//   - 当前 span 有效时写入 trace_id
type TracingMiddleware struct{}

func NewTracingMiddleware() *TracingMiddleware { return &TracingMiddleware{} }

func (m *TracingMiddleware) Name() string { return "Tracing" }

func (m *TracingMiddleware) Handle(ctx context.Context, message messaging.IMessage, next messaging.HandlerFunc) error {
	if message == nil {
		return next(ctx, message)
	}
	md := message.GetMetadata()
	if md == nil {
		return next(ctx, message)
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		setIfEmpty(md, KeyTraceID, traceID)
	}

	setIfEmpty(md, messaging.MetaCorrelationID, firstNonEmpty(eventing.CorrelationID(ctx), traceID, message.GetID()))
	setIfEmpty(md, messaging.MetaCausationID, firstNonEmpty(eventing.CausationID(ctx), message.GetID()))
	return next(ctx, message)
}

func setIfEmpty(md map[string]any, key, value string) {
	if s, ok := md[key].(string); ok && s != "" {
		return
	}
	md[key] = value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ messaging.IMiddleware = (*TracingMiddleware)(nil)
