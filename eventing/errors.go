package eventing

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent 事件缺少必填字段
var ErrInvalidEvent = errors.New("invalid event")

// EventStoreError 事件存储 I/O 失败
type EventStoreError struct {
	Op       string
	StreamID string
	Cause    error
}

func (e *EventStoreError) Error() string {
	if e.StreamID != "" {
		return fmt.Sprintf("event store %s %s: %v", e.Op, e.StreamID, e.Cause)
	}
	return fmt.Sprintf("event store %s: %v", e.Op, e.Cause)
}

func (e *EventStoreError) Unwrap() error { return e.Cause }

// NewStoreError 包装存储失败；nil 原样返回
func NewStoreError(op, streamID string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *EventStoreError
	if errors.As(cause, &existing) {
		return cause
	}
	return &EventStoreError{Op: op, StreamID: streamID, Cause: cause}
}

// ConcurrencyError 期望版本与事件流当前版本不一致
//
// 本身即最终语义，不包裹下层错误；调用方用 errors.As 识别。
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, actual version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expected, ActualVersion: actual}
}

// IsConcurrencyError 判断错误链中是否存在并发冲突
func IsConcurrencyError(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}
