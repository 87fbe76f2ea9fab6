// Package mongo 基于 MongoDB 的事件存储
//
// 每次追加写入一个提交文档，内含该批次的全部事件，单文档写入本身是原子的。
// (stream_id, version) 唯一索引以批次首个事件版本为键：基于同一版本并发追加的写入者
// 争用同一个键，只有一个成功，其余得到 ConcurrencyError，不会留下部分批次。
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"estatemgmt/eventing"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
	"estatemgmt/messaging"
)

// DefaultCollection 默认集合名
const DefaultCollection = "domain_events"

// commitDocument 一次 AppendToStream 写入的事件批次
type commitDocument struct {
	ID          string          `bson:"_id"`
	StreamID    string          `bson:"stream_id"`
	Version     int64           `bson:"version"` // 批次首个事件版本
	LastVersion int64           `bson:"last_version"`
	CommittedAt time.Time       `bson:"committed_at"`
	Events      []eventDocument `bson:"events"`
}

// eventDocument 事件文档；载荷与元数据保存为 JSON 文本，读回后与其他存储一致
type eventDocument struct {
	ID            string    `bson:"_id"`
	StreamID      string    `bson:"stream_id"`
	Version       int64     `bson:"version"`
	Type          string    `bson:"type"`
	AggregateID   string    `bson:"aggregate_id"`
	AggregateType string    `bson:"aggregate_type"`
	SchemaVersion int       `bson:"schema_version"`
	OccurredAt    time.Time `bson:"occurred_at"`
	Payload       string    `bson:"payload"`
	Metadata      string    `bson:"metadata"`
}

// Options 存储选项
type Options struct {
	Collection string
	Logger     logging.ILogger
}

// MongoEventStore 实现 store.IEventStore
type MongoEventStore struct {
	collection *mongo.Collection
	logger     logging.ILogger
}

func NewMongoEventStore(client *mongo.Client, database string, opts Options) *MongoEventStore {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("eventstore.mongo")
	}
	return &MongoEventStore{
		collection: client.Database(database).Collection(opts.Collection),
		logger:     opts.Logger,
	}
}

// EnsureIndexes 创建 (stream_id, version) 唯一索引（幂等）
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "stream_id", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("stream_version_unique"),
	})
	if err != nil {
		return fmt.Errorf("create event index: %w", err)
	}
	return nil
}

func (s *MongoEventStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"stream_id": streamID}, opts)
	if err != nil {
		return nil, eventing.NewStoreError("read", streamID, err)
	}
	defer cursor.Close(ctx)

	var commits []commitDocument
	if err := cursor.All(ctx, &commits); err != nil {
		return nil, eventing.NewStoreError("read", streamID, err)
	}

	events, err := flatten(commits)
	if err != nil {
		return nil, eventing.NewStoreError("decode", streamID, err)
	}
	return events, nil
}

// StreamVersion 实现 store.IStreamInspector
func (s *MongoEventStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"last_version": 1})
	var doc struct {
		LastVersion int64 `bson:"last_version"`
	}
	err := s.collection.FindOne(ctx, bson.M{"stream_id": streamID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eventing.NoStream, nil
	}
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("read version", streamID, err)
	}
	return doc.LastVersion, nil
}

func (s *MongoEventStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}
	if err := store.PrepareAppend(streamID, expectedVersion, events); err != nil {
		return eventing.NoStream, err
	}
	commit, err := newCommit(streamID, events)
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("serialize", streamID, err)
	}

	current, err := s.StreamVersion(ctx, streamID)
	if err != nil {
		return eventing.NoStream, err
	}
	if err := store.CheckVersion(streamID, expectedVersion, current); err != nil {
		return eventing.NoStream, err
	}
	if _, err := s.collection.InsertOne(ctx, commit); err != nil {
		return eventing.NoStream, s.classify(ctx, streamID, expectedVersion, err)
	}

	newVersion := expectedVersion + int64(len(events))
	s.logger.Debug(ctx, "events appended",
		logging.String("stream_id", streamID),
		logging.Int("event_count", len(events)),
		logging.Int64("version", newVersion))
	return newVersion, nil
}

func (s *MongoEventStore) classify(ctx context.Context, streamID string, expectedVersion int64, err error) error {
	if eventing.IsConcurrencyError(err) {
		return err
	}
	var storeErr *eventing.EventStoreError
	if errors.As(err, &storeErr) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		actual, verr := s.StreamVersion(ctx, streamID)
		if verr != nil {
			actual = expectedVersion + 1
		}
		return eventing.NewConcurrencyError(streamID, expectedVersion, actual)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return eventing.NewStoreError("append", streamID, err)
}

// newCommit 把一批已分配版本的事件打包为一个提交文档
func newCommit(streamID string, events []*eventing.Event) (commitDocument, error) {
	docs := make([]eventDocument, 0, len(events))
	for _, e := range events {
		doc, err := toDocument(e)
		if err != nil {
			return commitDocument{}, err
		}
		docs = append(docs, doc)
	}
	return commitDocument{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		Version:     docs[0].Version,
		LastVersion: docs[len(docs)-1].Version,
		CommittedAt: time.Now().UTC(),
		Events:      docs,
	}, nil
}

// flatten 按提交顺序展开事件
func flatten(commits []commitDocument) ([]eventing.Event, error) {
	var events []eventing.Event
	for _, c := range commits {
		for _, doc := range c.Events {
			e, err := fromDocument(doc)
			if err != nil {
				return nil, err
			}
			events = append(events, e)
		}
	}
	if events == nil {
		events = []eventing.Event{}
	}
	return events, nil
}

func toDocument(e *eventing.Event) (eventDocument, error) {
	payload, err := e.PayloadJSON()
	if err != nil {
		return eventDocument{}, err
	}
	metadata, err := json.Marshal(e.GetMetadata())
	if err != nil {
		return eventDocument{}, err
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return eventDocument{
		ID:            e.ID,
		StreamID:      e.StreamID,
		Version:       e.Version,
		Type:          e.Type,
		AggregateID:   e.AggregateID.String(),
		AggregateType: e.AggregateType,
		SchemaVersion: e.GetSchemaVersion(),
		OccurredAt:    ts.UTC(),
		Payload:       string(payload),
		Metadata:      string(metadata),
	}, nil
}

func fromDocument(doc eventDocument) (eventing.Event, error) {
	id, err := uuid.Parse(doc.AggregateID)
	if err != nil {
		return eventing.Event{}, fmt.Errorf("event %s: invalid aggregate id: %w", doc.ID, err)
	}
	metadata := make(map[string]any)
	if doc.Metadata != "" {
		if err := json.Unmarshal([]byte(doc.Metadata), &metadata); err != nil {
			return eventing.Event{}, fmt.Errorf("event %s: decode metadata: %w", doc.ID, err)
		}
	}
	return eventing.Event{
		Message: messaging.Message{
			ID:        doc.ID,
			Type:      doc.Type,
			Timestamp: doc.OccurredAt.UTC(),
			Payload:   json.RawMessage(doc.Payload),
			Metadata:  metadata,
		},
		StreamID:      doc.StreamID,
		AggregateID:   id,
		AggregateType: doc.AggregateType,
		Version:       doc.Version,
		SchemaVersion: doc.SchemaVersion,
	}, nil
}

var (
	_ store.IEventStore      = (*MongoEventStore)(nil)
	_ store.IStreamInspector = (*MongoEventStore)(nil)
)
