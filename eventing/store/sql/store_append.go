package sql

import (
	"context"
	"encoding/json"
	"time"

	"estatemgmt/eventing"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
	core "estatemgmt/storage/database"
	dbsql "estatemgmt/storage/database/sql"
)

// preparedEvent 预先序列化的事件行
type preparedEvent struct {
	id            string
	version       int64
	typ           string
	aggregateID   string
	aggregateType string
	schemaVersion int
	occurredAt    int64
	payloadJSON   string
	metadataJSON  string
}

func (s *SQLEventStore) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []*eventing.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}
	if err := store.PrepareAppend(streamID, expectedVersion, events); err != nil {
		return eventing.NoStream, err
	}
	prepared, err := prepareEvents(events)
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("serialize", streamID, err)
	}

	start := time.Now()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("begin", streamID, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := s.streamVersion(ctx, tx, streamID)
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("read version", streamID, err)
	}
	if err := store.CheckVersion(streamID, expectedVersion, current); err != nil {
		return eventing.NoStream, err
	}

	if err := s.insert(ctx, tx, streamID, prepared); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			// 版本检查之后有并发写入者抢先提交
			_ = tx.Rollback()
			committed = true
			actual, verr := s.StreamVersion(ctx, streamID)
			if verr != nil {
				actual = expectedVersion + 1
			}
			return eventing.NoStream, eventing.NewConcurrencyError(streamID, expectedVersion, actual)
		}
		return eventing.NoStream, eventing.NewStoreError("insert", streamID, err)
	}

	if err := ctx.Err(); err != nil {
		return eventing.NoStream, err
	}
	if err := tx.Commit(); err != nil {
		return eventing.NoStream, eventing.NewStoreError("commit", streamID, err)
	}
	committed = true

	newVersion := expectedVersion + int64(len(events))
	s.logger.Debug(ctx, "events appended",
		logging.String("stream_id", streamID),
		logging.Int("event_count", len(events)),
		logging.Int64("version", newVersion),
		logging.Duration("elapsed", time.Since(start)))
	return newVersion, nil
}

func (s *SQLEventStore) insert(ctx context.Context, db core.IDatabase, streamID string, prepared []preparedEvent) error {
	b := dbsql.New(db).InsertInto(s.table).Columns(
		"id", "stream_id", "version", "type", "aggregate_id", "aggregate_type",
		"schema_version", "occurred_at", "payload", "metadata",
	)
	for _, p := range prepared {
		b.Values(p.id, streamID, p.version, p.typ, p.aggregateID, p.aggregateType,
			p.schemaVersion, p.occurredAt, p.payloadJSON, p.metadataJSON)
	}
	_, err := b.Exec(ctx)
	return err
}

func prepareEvents(events []*eventing.Event) ([]preparedEvent, error) {
	prepared := make([]preparedEvent, 0, len(events))
	for _, e := range events {
		payload, err := e.PayloadJSON()
		if err != nil {
			return nil, err
		}
		metadata, err := json.Marshal(e.GetMetadata())
		if err != nil {
			return nil, err
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		prepared = append(prepared, preparedEvent{
			id:            e.ID,
			version:       e.Version,
			typ:           e.Type,
			aggregateID:   e.AggregateID.String(),
			aggregateType: e.AggregateType,
			schemaVersion: e.GetSchemaVersion(),
			occurredAt:    ts.UnixNano(),
			payloadJSON:   string(payload),
			metadataJSON:  string(metadata),
		})
	}
	return prepared, nil
}
