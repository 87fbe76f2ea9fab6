package store

import (
	"context"

	"estatemgmt/eventing"
	"estatemgmt/logging"
	"estatemgmt/messaging"
)

// IPublisher 已提交事件的发布目标，messaging.IMessageBus 满足该接口
type IPublisher interface {
	PublishAll(ctx context.Context, messages []messaging.IMessage) error
}

// PublishingEventStore 追加成功后把事件发布到消息总线
//
// 发布发生在提交之后：发布失败只记录日志，追加结果仍视为成功，
// 下游需要容忍漏发（可由事件流重放补齐）。
type PublishingEventStore struct {
	store     IEventStore
	publisher IPublisher
	logger    logging.ILogger
}

// NewPublishingEventStore 创建发布装饰器；publisher 为 nil 时退化为透传
func NewPublishingEventStore(store IEventStore, publisher IPublisher, logger logging.ILogger) *PublishingEventStore {
	if logger == nil {
		logger = logging.ComponentLogger("eventstore.publishing")
	}
	return &PublishingEventStore{store: store, publisher: publisher, logger: logger}
}

func (s *PublishingEventStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	return s.store.ReadStream(ctx, streamID)
}

func (s *PublishingEventStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error) {
	version, err := s.store.AppendToStream(ctx, streamID, expectedVersion, events)
	if err != nil || len(events) == 0 || s.publisher == nil {
		return version, err
	}

	if pubErr := s.publisher.PublishAll(ctx, eventing.ToMessages(events)); pubErr != nil {
		s.logger.Warn(ctx, "publish committed events failed",
			logging.String("stream_id", streamID),
			logging.Int("event_count", len(events)),
			logging.Int64("version", version),
			logging.Error(pubErr))
	}
	return version, nil
}

var _ IEventStore = (*PublishingEventStore)(nil)
