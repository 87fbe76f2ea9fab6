// Package eventing 定义持久化事件信封、事件流命名与事件存储错误
//
// 版本号沿用事件流位置语义：第一条事件版本为 0，空流的版本为 NoStream(-1)。
package eventing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"estatemgmt/messaging"
)

// NoStream 空事件流的期望版本
const NoStream int64 = -1

// StreamID 事件流标识："<AggregateType>-<uuid>"
func StreamID(aggregateType string, id uuid.UUID) string {
	return aggregateType + "-" + id.String()
}

// IEvent 事件接口（用于传输/路由）
type IEvent interface {
	messaging.IMessage

	GetStreamID() string
	GetAggregateID() uuid.UUID
	GetAggregateType() string
	GetVersion() int64
}

// Event 持久化事件信封
//
// Payload 在写入前为领域事件值，从存储读回时为 json.RawMessage，
// 由各聚合包的 DecodeEvent 按 Type 解析。
type Event struct {
	messaging.Message
	StreamID      string    `json:"stream_id"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	Version       int64     `json:"version"`
	SchemaVersion int       `json:"schema_version"`
}

func (e *Event) GetStreamID() string       { return e.StreamID }
func (e *Event) GetAggregateID() uuid.UUID { return e.AggregateID }
func (e *Event) GetAggregateType() string  { return e.AggregateType }
func (e *Event) GetVersion() int64         { return e.Version }

// GetSchemaVersion 未设置时视为 1
func (e *Event) GetSchemaVersion() int {
	if e.SchemaVersion <= 0 {
		return 1
	}
	return e.SchemaVersion
}

// Validate 校验写入前的必填字段；版本号由存储分配，不在此校验
func (e *Event) Validate() error {
	if e.GetID() == "" {
		return fmt.Errorf("%w: event id is empty", ErrInvalidEvent)
	}
	if e.GetType() == "" {
		return fmt.Errorf("%w: event type is empty", ErrInvalidEvent)
	}
	if e.StreamID == "" {
		return fmt.Errorf("%w: stream id is empty", ErrInvalidEvent)
	}
	if e.AggregateType == "" {
		return fmt.Errorf("%w: aggregate type is empty", ErrInvalidEvent)
	}
	return nil
}

// PayloadJSON 返回载荷的 JSON 表示
func (e *Event) PayloadJSON() ([]byte, error) {
	return messaging.MarshalPayload(e.Payload)
}

// NewEvent 创建待追加的事件，Version 在追加时由存储填写
func NewEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload any) *Event {
	return &Event{
		Message: messaging.Message{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Payload:   payload,
			Metadata:  make(map[string]any),
		},
		StreamID:      StreamID(aggregateType, aggregateID),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       NoStream,
		SchemaVersion: 1,
	}
}
