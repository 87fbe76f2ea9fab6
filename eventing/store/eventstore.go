// Package store 定义事件存储边界及其内存实现与装饰器
package store

import (
	"context"

	"estatemgmt/eventing"
)

// IEventStore 追加式事件日志
//
// 读取：
//   - ReadStream 按版本升序返回事件流中的全部事件；事件流不存在时返回空切片而非错误
//   - 读回的事件 Payload 为 json.RawMessage
//
// 写入：
//   - expectedVersion 为写入前事件流的最后版本，空流为 eventing.NoStream
//   - 与当前版本不一致时返回 *eventing.ConcurrencyError，且不写入任何事件
//   - 版本检查与批量写入是原子的
//   - 成功后各事件的 Version 被依次赋值为 expectedVersion+1...，返回新的流版本
//   - I/O 失败返回 *eventing.EventStoreError
type IEventStore interface {
	ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error)
	AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error)
}

// IStreamInspector 可选扩展：查询事件流当前版本
type IStreamInspector interface {
	// StreamVersion 事件流不存在时返回 eventing.NoStream
	StreamVersion(ctx context.Context, streamID string) (int64, error)
}
