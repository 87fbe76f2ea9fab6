package errors

import (
	"context"
	stdErrors "errors"

	"estatemgmt/eventing"
)

// Normalize 将事件存储层错误规范化为 AppError
//
// 已是 IError 的原样返回；上下文取消原样返回，交由调用方处理；
// 超时与存储 I/O 失败同属存储不可用；其余未识别的错误保持原样，
// 由 WrapStoreError 决定是否视为存储不可用。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	if stdErrors.Is(err, context.Canceled) {
		return err
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		appErr := WrapError(err, ErrCodeServiceUnavailable, "事件存储操作超时")
		var storeErr *eventing.EventStoreError
		if stdErrors.As(err, &storeErr) {
			return appErr.WithContext("operation", storeErr.Op)
		}
		return appErr
	}

	var concurrencyErr *eventing.ConcurrencyError
	if stdErrors.As(err, &concurrencyErr) {
		return WrapError(err, ErrCodeConcurrency, "事件流版本冲突").
			WithContext("stream_id", concurrencyErr.StreamID).
			WithContext("expected_version", concurrencyErr.ExpectedVersion).
			WithContext("actual_version", concurrencyErr.ActualVersion)
	}

	if stdErrors.Is(err, eventing.ErrInvalidEvent) {
		return WrapError(err, ErrCodeInvalidInput, "无效的事件")
	}

	var storeErr *eventing.EventStoreError
	if stdErrors.As(err, &storeErr) {
		return WrapError(err, ErrCodeServiceUnavailable, "事件存储不可用").
			WithContext("operation", storeErr.Op)
	}

	return err
}
