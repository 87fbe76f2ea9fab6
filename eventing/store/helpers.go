package store

import (
	"context"
	"fmt"

	"estatemgmt/eventing"
)

// PrepareAppend 校验待追加事件并按 expectedVersion 依次分配版本号
//
// 各存储实现在版本检查之前调用，保证写入的事件属于同一事件流且字段完整。
func PrepareAppend(streamID string, expectedVersion int64, events []*eventing.Event) error {
	if streamID == "" {
		return fmt.Errorf("%w: stream id is empty", eventing.ErrInvalidEvent)
	}
	if expectedVersion < eventing.NoStream {
		return fmt.Errorf("%w: expected version %d", eventing.ErrInvalidEvent, expectedVersion)
	}
	for i, e := range events {
		if e == nil {
			return fmt.Errorf("%w: event %d is nil", eventing.ErrInvalidEvent, i)
		}
		if e.StreamID == "" {
			e.StreamID = streamID
		}
		if e.StreamID != streamID {
			return fmt.Errorf("%w: event %s belongs to %s, not %s", eventing.ErrInvalidEvent, e.ID, e.StreamID, streamID)
		}
		if err := e.Validate(); err != nil {
			return err
		}
		e.Version = expectedVersion + int64(i) + 1
	}
	return nil
}

// CheckVersion 比较期望版本与当前版本
func CheckVersion(streamID string, expected, actual int64) error {
	if expected != actual {
		return eventing.NewConcurrencyError(streamID, expected, actual)
	}
	return nil
}

// StreamVersion 获取事件流当前版本，优先使用 IStreamInspector
func StreamVersion(ctx context.Context, s IEventStore, streamID string) (int64, error) {
	if inspector, ok := s.(IStreamInspector); ok {
		return inspector.StreamVersion(ctx, streamID)
	}
	events, err := s.ReadStream(ctx, streamID)
	if err != nil {
		return eventing.NoStream, err
	}
	if len(events) == 0 {
		return eventing.NoStream, nil
	}
	return events[len(events)-1].Version, nil
}
