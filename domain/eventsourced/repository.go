package eventsourced

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"estatemgmt/domain"
	"estatemgmt/errors"
	"estatemgmt/eventing"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
	"estatemgmt/messaging"
)

// Decoder 按事件类型把持久化载荷解码为领域事件
type Decoder func(eventType string, payload []byte) (domain.IDomainEvent, error)

// IRepository 事件溯源仓储接口
type IRepository[T IAggregate] interface {
	// Load 重放事件流重建聚合；事件流为空时返回 NOT_FOUND
	Load(ctx context.Context, id uuid.UUID) (T, error)

	// LoadOrNew 事件流为空时返回空聚合，用于带客户端指定 ID 的创建流程
	LoadOrNew(ctx context.Context, id uuid.UUID) (T, error)

	// Save 以加载时的版本为期望版本追加未提交事件
	Save(ctx context.Context, aggregate T) error

	// New 构造空聚合，用于创建流程
	New(id uuid.UUID) T
}

// RepositoryOptions 仓储构造参数
type RepositoryOptions[T IAggregate] struct {
	AggregateType string
	Factory       func(id uuid.UUID) T
	Decoder       Decoder
	EventStore    store.IEventStore
	Logger        logging.ILogger

	// Upgrader 可选，读取旧模式版本的事件时先升级载荷
	Upgrader *eventing.UpgradeChain
}

// Repository 通用事件溯源仓储。
//
// 一个实现服务所有聚合类型：聚合构造由 Factory 提供，载荷解码由 Decoder 提供。
// 仓储不缓存聚合、不重试、不记录失败日志，错误按 errors 包的分类原样上抛。
type Repository[T IAggregate] struct {
	aggregateType string
	factory       func(id uuid.UUID) T
	decoder       Decoder
	store         store.IEventStore
	upgrader      *eventing.UpgradeChain
	logger        logging.ILogger
}

// NewRepository 创建事件溯源仓储。
func NewRepository[T IAggregate](opts RepositoryOptions[T]) (*Repository[T], error) {
	if opts.AggregateType == "" {
		return nil, fmt.Errorf("aggregate type cannot be empty")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("aggregate factory cannot be nil")
	}
	if opts.Decoder == nil {
		return nil, fmt.Errorf("event decoder cannot be nil")
	}
	if opts.EventStore == nil {
		return nil, fmt.Errorf("event store cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("eventsourced.repository")
	}
	return &Repository[T]{
		aggregateType: opts.AggregateType,
		factory:       opts.Factory,
		decoder:       opts.Decoder,
		store:         opts.EventStore,
		upgrader:      opts.Upgrader,
		logger:        opts.Logger.WithFields(logging.String("aggregate_type", opts.AggregateType)),
	}, nil
}

// AggregateType 返回仓储负责的聚合类型
func (r *Repository[T]) AggregateType() string { return r.aggregateType }

// New 构造空聚合
func (r *Repository[T]) New(id uuid.UUID) T {
	return r.factory(id)
}

// Load 读取事件流并按版本顺序重放
func (r *Repository[T]) Load(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	streamID := eventing.StreamID(r.aggregateType, id)

	records, err := r.store.ReadStream(ctx, streamID)
	if err != nil {
		return zero, errors.WrapStoreError(ctx, err, "read stream")
	}
	if len(records) == 0 {
		return zero, errors.NotFoundf("%s %s 不存在", r.aggregateType, id)
	}

	aggregate := r.factory(id)
	for i := range records {
		evt, err := r.decode(&records[i])
		if err != nil {
			return zero, err
		}
		aggregate.ApplyEvent(evt)
	}

	last := records[len(records)-1].Version
	if aggregate.GetVersion() != last {
		return zero, errors.Newf(errors.ErrCodeInternal,
			"事件流 %s 版本不连续: 重放后版本 %d，最后事件版本 %d", streamID, aggregate.GetVersion(), last)
	}
	return aggregate, nil
}

// LoadOrNew 加载聚合；事件流不存在时返回空聚合
func (r *Repository[T]) LoadOrNew(ctx context.Context, id uuid.UUID) (T, error) {
	aggregate, err := r.Load(ctx, id)
	if errors.IsNotFound(err) {
		return r.factory(id), nil
	}
	return aggregate, err
}

// Save 追加未提交事件；没有未提交事件时不访问存储
func (r *Repository[T]) Save(ctx context.Context, aggregate T) error {
	pending := aggregate.GetUncommittedEvents()
	if len(pending) == 0 {
		return nil
	}
	if aggregate.GetAggregateType() != r.aggregateType {
		return errors.Newf(errors.ErrCodeInternal,
			"聚合类型 %s 与仓储类型 %s 不一致", aggregate.GetAggregateType(), r.aggregateType)
	}

	id := aggregate.GetID()
	streamID := eventing.StreamID(r.aggregateType, id)
	expectedVersion := aggregate.GetVersion() - int64(len(pending))

	events := make([]*eventing.Event, 0, len(pending))
	for _, evt := range pending {
		e := eventing.NewEvent(r.aggregateType, id, evt.EventType(), evt)
		e.SchemaVersion = r.upgrader.TargetVersion(evt.EventType())
		events = append(events, e)
	}

	version, err := r.store.AppendToStream(ctx, streamID, expectedVersion, events)
	if err != nil {
		return errors.WrapStoreError(ctx, err, "append to stream")
	}

	aggregate.MarkEventsAsCommitted()
	r.logger.Debug(ctx, "aggregate saved",
		logging.String("stream_id", streamID),
		logging.Int("event_count", len(events)),
		logging.Int64("version", version))
	return nil
}

func (r *Repository[T]) decode(record *eventing.Event) (domain.IDomainEvent, error) {
	payload, err := messaging.MarshalPayload(record.Payload)
	if err == nil {
		payload, _, err = r.upgrader.Upgrade(record.Type, record.GetSchemaVersion(), payload)
	}
	if err == nil {
		var evt domain.IDomainEvent
		evt, err = r.decoder(record.Type, payload)
		if err == nil {
			return evt, nil
		}
	}
	return nil, errors.WrapError(err, errors.ErrCodeInternal, "事件解码失败").
		WithContext("stream_id", record.StreamID).
		WithContext("event_type", record.Type).
		WithContext("version", record.Version)
}

var _ IRepository[IAggregate] = (*Repository[IAggregate])(nil)
