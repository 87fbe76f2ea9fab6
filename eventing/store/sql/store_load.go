package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"estatemgmt/eventing"
	"estatemgmt/messaging"
	core "estatemgmt/storage/database"
	dbsql "estatemgmt/storage/database/sql"
)

func (s *SQLEventStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	rows, err := dbsql.New(s.db).Select(eventColumns).
		From(s.table).
		Where("stream_id = ?", streamID).
		OrderBy("version ASC").
		Query(ctx)
	if err != nil {
		return nil, eventing.NewStoreError("read", streamID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, eventing.NewStoreError("read", streamID, err)
	}
	return events, nil
}

// StreamVersion 实现 store.IStreamInspector
func (s *SQLEventStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	v, err := s.streamVersion(ctx, s.db, streamID)
	if err != nil {
		return eventing.NoStream, eventing.NewStoreError("read version", streamID, err)
	}
	return v, nil
}

func (s *SQLEventStore) streamVersion(ctx context.Context, db core.IDatabase, streamID string) (int64, error) {
	var current sql.NullInt64
	row := dbsql.New(db).Select("MAX(version)").From(s.table).Where("stream_id = ?", streamID).QueryRow(ctx)
	if err := row.Scan(&current); err != nil {
		return eventing.NoStream, err
	}
	if !current.Valid {
		return eventing.NoStream, nil
	}
	return current.Int64, nil
}

func scanEvents(rows core.IRows) ([]eventing.Event, error) {
	events := make([]eventing.Event, 0)
	for rows.Next() {
		var (
			e             eventing.Event
			aggregateID   string
			occurredAt    int64
			payloadJSON   string
			metadataJSON  string
			schemaVersion int
		)
		if err := rows.Scan(&e.ID, &e.StreamID, &e.Version, &e.Type, &aggregateID, &e.AggregateType,
			&schemaVersion, &occurredAt, &payloadJSON, &metadataJSON); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(aggregateID)
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid aggregate id: %w", e.ID, err)
		}
		metadata := make(map[string]any)
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
				return nil, fmt.Errorf("event %s: decode metadata: %w", e.ID, err)
			}
		}
		e.AggregateID = id
		e.SchemaVersion = schemaVersion
		e.Message = messaging.Message{
			ID:        e.ID,
			Type:      e.Type,
			Timestamp: time.Unix(0, occurredAt).UTC(),
			Payload:   json.RawMessage(payloadJSON),
			Metadata:  metadata,
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
