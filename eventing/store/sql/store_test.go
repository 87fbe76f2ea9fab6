package sql

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/eventing"
	estore "estatemgmt/eventing/store"
	"estatemgmt/logging"
	"estatemgmt/storage/database"
	basicdb "estatemgmt/storage/database/basic"
)

// 测试辅助：创建内存数据库并初始化表
func setupTestStore(t *testing.T) *SQLEventStore {
	db, err := basicdb.New(database.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLEventStore(db, "", logging.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()), "schema creation is idempotent")
	return s
}

func makeEvents(aggregateID uuid.UUID, types ...string) []*eventing.Event {
	events := make([]*eventing.Event, len(types))
	for i, typ := range types {
		events[i] = eventing.NewEvent("Contract", aggregateID, typ, map[string]any{"n": i})
		events[i].Metadata["correlation_id"] = "cor-1"
	}
	return events
}

func TestSQLEventStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	id := uuid.New()
	streamID := eventing.StreamID("Contract", id)

	events, err := s.ReadStream(ctx, streamID)
	require.NoError(t, err)
	assert.Empty(t, events)

	version, err := s.AppendToStream(ctx, streamID, eventing.NoStream, makeEvents(id, "ContractCreatedEvent", "ProductAddedToContractEvent"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	version, err = s.AppendToStream(ctx, streamID, 1, makeEvents(id, "TransactionFeeForProductAddedToContractEvent"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	events, err = s.ReadStream(ctx, streamID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i), e.Version)
		assert.Equal(t, id, e.AggregateID)
		assert.Equal(t, "Contract", e.AggregateType)
		assert.Equal(t, streamID, e.StreamID)
		assert.Equal(t, "cor-1", e.Metadata["correlation_id"])
	}
	assert.Equal(t, "TransactionFeeForProductAddedToContractEvent", events[2].Type)
	assert.JSONEq(t, `{"n":0}`, string(events[2].Payload.(json.RawMessage)))
	assert.False(t, events[0].Timestamp.IsZero())

	current, err := estore.StreamVersion(ctx, s, streamID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
}

func TestSQLEventStore_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	id := uuid.New()
	streamID := eventing.StreamID("Contract", id)

	_, err := s.AppendToStream(ctx, streamID, eventing.NoStream, makeEvents(id, "A"))
	require.NoError(t, err)

	_, err = s.AppendToStream(ctx, streamID, eventing.NoStream, makeEvents(id, "B", "C"))
	var ce *eventing.ConcurrencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(0), ce.ActualVersion)

	events, err := s.ReadStream(ctx, streamID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "conflicting batch is not written")
}

func TestSQLEventStore_ParallelWritersOneWins(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	id := uuid.New()
	streamID := eventing.StreamID("Contract", id)
	_, err := s.AppendToStream(ctx, streamID, eventing.NoStream, makeEvents(id, "A"))
	require.NoError(t, err)

	const writers = 4
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AppendToStream(ctx, streamID, 0, makeEvents(id, "B"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, eventing.IsConcurrencyError(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestSQLEventStore_StreamsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	a, b := uuid.New(), uuid.New()

	_, err := s.AppendToStream(ctx, eventing.StreamID("Contract", a), eventing.NoStream, makeEvents(a, "A", "A2"))
	require.NoError(t, err)
	_, err = s.AppendToStream(ctx, eventing.StreamID("Contract", b), eventing.NoStream, makeEvents(b, "B"))
	require.NoError(t, err)

	events, err := s.ReadStream(ctx, eventing.StreamID("Contract", b))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(0), events[0].Version)
}

func TestSQLEventStore_ClosedDatabaseIsStoreError(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	require.NoError(t, s.GetDB().Close())

	_, err := s.ReadStream(ctx, "Contract-x")
	var storeErr *eventing.EventStoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestNewSQLEventStore_RejectsBadTableName(t *testing.T) {
	db, err := basicdb.New(database.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLEventStore(db, "events; DROP TABLE x", nil)
	assert.Error(t, err)
}
