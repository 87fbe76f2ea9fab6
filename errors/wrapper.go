package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"runtime"

	"estatemgmt/logging"
)

// Wrap 包装错误，添加错误码和上下文信息
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)
	logging.GetLogger().Debug(ctx, "错误包装", logging.String("message", msg),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)))

	return wrapped
}

// WrapStoreError 包装事件存储错误
//
// 并发冲突、超时等可识别错误按 Normalize 归类；调用方取消时原样返回；
// 其余一律视为存储不可用。
// 不记录日志，由调用方决定如何处理。
func WrapStoreError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	normalized := Normalize(err)
	if _, ok := normalized.(IError); ok {
		return normalized
	}
	if stdErrors.Is(ctx.Err(), context.Canceled) {
		return err
	}

	return WrapError(err, ErrCodeServiceUnavailable,
		fmt.Sprintf("事件存储操作失败: %s", operation)).
		WithContext("operation", operation)
}

// NewValidationError 创建验证错误
func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}

// Validationf 按格式创建验证错误
func Validationf(format string, args ...any) error {
	return Newf(ErrCodeValidation, format, args...)
}

// NotFoundf 按格式创建未找到错误
func NotFoundf(format string, args ...any) error {
	return Newf(ErrCodeNotFound, format, args...)
}
