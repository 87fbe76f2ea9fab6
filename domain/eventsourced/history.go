package eventsourced

import (
	"context"
	"time"

	"github.com/google/uuid"

	"estatemgmt/errors"
	"estatemgmt/eventing"
	"estatemgmt/messaging"
)

// HistoryEntry 事件历史中的一条，供审计视图使用
type HistoryEntry struct {
	EventID       string    `json:"event_id"`
	StreamID      string    `json:"stream_id"`
	Version       int64     `json:"version"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Payload       []byte    `json:"payload"`
}

// HistoryPage 分页后的事件历史
type HistoryPage struct {
	Entries  []HistoryEntry `json:"entries"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// HistoryPage 按页读取聚合的事件历史；page 从 1 开始，越界返回空页但保留总数。
// 时间戳仅用于审计，顺序始终以版本为准。
func (r *Repository[T]) HistoryPage(ctx context.Context, id uuid.UUID, page, pageSize int) (*HistoryPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	streamID := eventing.StreamID(r.aggregateType, id)
	records, err := r.store.ReadStream(ctx, streamID)
	if err != nil {
		return nil, errors.WrapStoreError(ctx, err, "read stream")
	}
	if len(records) == 0 {
		return nil, errors.NotFoundf("%s %s 不存在", r.aggregateType, id)
	}

	result := &HistoryPage{Entries: []HistoryEntry{}, Total: len(records), Page: page, PageSize: pageSize}
	start := (page - 1) * pageSize
	if start >= len(records) {
		return result, nil
	}
	end := min(start+pageSize, len(records))

	for i := start; i < end; i++ {
		entry, err := toHistoryEntry(&records[i])
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func toHistoryEntry(e *eventing.Event) (HistoryEntry, error) {
	payload, err := e.PayloadJSON()
	if err != nil {
		return HistoryEntry{}, errors.WrapError(err, errors.ErrCodeInternal, "事件载荷无法序列化")
	}
	correlationID, _ := e.GetMetadata()[messaging.MetaCorrelationID].(string)
	return HistoryEntry{
		EventID:       e.ID,
		StreamID:      e.StreamID,
		Version:       e.Version,
		EventType:     e.Type,
		OccurredAt:    e.Timestamp,
		CorrelationID: correlationID,
		Payload:       payload,
	}, nil
}
