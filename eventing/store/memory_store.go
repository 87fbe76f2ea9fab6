package store

import (
	"context"
	"encoding/json"
	"sync"

	"estatemgmt/eventing"
)

// MemoryEventStore 进程内事件存储，用于测试与单进程部署
//
// 写入时即把载荷序列化为 JSON，读取路径与持久化实现保持一致。
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]eventing.Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]eventing.Event),
	}
}

func (m *MemoryEventStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stream := m.streams[streamID]
	res := make([]eventing.Event, len(stream))
	for i, e := range stream {
		res[i] = cloneEvent(e)
	}
	return res, nil
}

func (m *MemoryEventStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}
	if err := PrepareAppend(streamID, expectedVersion, events); err != nil {
		return eventing.NoStream, err
	}

	records := make([]eventing.Event, len(events))
	for i, e := range events {
		payload, err := e.PayloadJSON()
		if err != nil {
			return eventing.NoStream, eventing.NewStoreError("append", streamID, err)
		}
		record := cloneEvent(*e)
		record.Payload = json.RawMessage(payload)
		records[i] = record
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return eventing.NoStream, err
	}
	if err := CheckVersion(streamID, expectedVersion, m.versionLocked(streamID)); err != nil {
		return eventing.NoStream, err
	}
	m.streams[streamID] = append(m.streams[streamID], records...)
	return m.versionLocked(streamID), nil
}

// StreamVersion 实现 IStreamInspector
func (m *MemoryEventStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versionLocked(streamID), nil
}

func (m *MemoryEventStore) versionLocked(streamID string) int64 {
	stream := m.streams[streamID]
	if len(stream) == 0 {
		return eventing.NoStream
	}
	return stream[len(stream)-1].Version
}

// cloneEvent 复制元数据，避免调用方修改已存储的事件
func cloneEvent(e eventing.Event) eventing.Event {
	md := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	e.Metadata = md
	return e
}

var (
	_ IEventStore      = (*MemoryEventStore)(nil)
	_ IStreamInspector = (*MemoryEventStore)(nil)
)
