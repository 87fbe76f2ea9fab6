package eventing

import (
	"context"

	"estatemgmt/messaging"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	causationIDKey   contextKey = "causation_id"
)

// WithCorrelationID 在 Context 中设置关联 ID（标识整个业务流程）
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID 读取关联 ID
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// WithCausationID 在 Context 中设置因果 ID（通常为触发事件的命令 ID）
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationIDKey, id)
}

// CausationID 读取因果 ID
func CausationID(ctx context.Context) string {
	v, _ := ctx.Value(causationIDKey).(string)
	return v
}

// ToMessages 转换为发布用的消息，元数据中补齐聚合路由信息
func ToMessages(events []*Event) []messaging.IMessage {
	if len(events) == 0 {
		return nil
	}
	res := make([]messaging.IMessage, len(events))
	for i, e := range events {
		msg := e.Message
		msg.Metadata = make(map[string]any, len(e.Metadata)+4)
		for k, v := range e.Metadata {
			msg.Metadata[k] = v
		}
		msg.Metadata[messaging.MetaStreamID] = e.StreamID
		msg.Metadata[messaging.MetaAggregateID] = e.AggregateID.String()
		msg.Metadata[messaging.MetaAggregateType] = e.AggregateType
		msg.Metadata[messaging.MetaVersion] = e.Version
		res[i] = &msg
	}
	return res
}
