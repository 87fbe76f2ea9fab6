package eventsourced

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/domain"
	"estatemgmt/errors"
	"estatemgmt/eventing"
	"estatemgmt/eventing/store"
	sqlstore "estatemgmt/eventing/store/sql"
	"estatemgmt/logging"
	"estatemgmt/storage/database"
	basicdb "estatemgmt/storage/database/basic"
)

// 测试用聚合：计数器
const counterType = "Counter"

type incremented struct {
	By int `json:"by"`
}

func (incremented) EventType() string { return "Incremented" }

type counter struct {
	Aggregate
	total int
}

func newCounter(id uuid.UUID) *counter {
	return &counter{Aggregate: NewAggregate(id, counterType)}
}

func (c *counter) Increment(by int) error {
	if by <= 0 {
		return errors.Validationf("by must be positive, got %d", by)
	}
	Raise(c, incremented{By: by})
	return nil
}

func (c *counter) ApplyEvent(evt domain.IDomainEvent) {
	switch ev := evt.(type) {
	case incremented:
		c.total += ev.By
	default:
		panic(UnsupportedEvent(c, evt))
	}
	c.Advance()
}

func decodeCounter(eventType string, payload []byte) (domain.IDomainEvent, error) {
	if eventType != "Incremented" {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	var evt incremented
	err := json.Unmarshal(payload, &evt)
	return evt, err
}

// spyStore 统计调用次数，可注入错误
type spyStore struct {
	store.IEventStore
	appends   atomic.Int32
	appendErr error
	readErr   error
}

func (s *spyStore) ReadStream(ctx context.Context, streamID string) ([]eventing.Event, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.IEventStore.ReadStream(ctx, streamID)
}

func (s *spyStore) AppendToStream(ctx context.Context, streamID string, expected int64, events []*eventing.Event) (int64, error) {
	s.appends.Add(1)
	if s.appendErr != nil {
		return eventing.NoStream, s.appendErr
	}
	return s.IEventStore.AppendToStream(ctx, streamID, expected, events)
}

func newCounterRepo(t *testing.T, es store.IEventStore) *Repository[*counter] {
	t.Helper()
	repo, err := NewRepository(RepositoryOptions[*counter]{
		AggregateType: counterType,
		Factory:       newCounter,
		Decoder:       decodeCounter,
		EventStore:    es,
		Logger:        logging.NewNoopLogger(),
	})
	require.NoError(t, err)
	return repo
}

func TestNewRepository_RequiresOptions(t *testing.T) {
	es := store.NewMemoryEventStore()
	cases := map[string]RepositoryOptions[*counter]{
		"no type":    {Factory: newCounter, Decoder: decodeCounter, EventStore: es},
		"no factory": {AggregateType: counterType, Decoder: decodeCounter, EventStore: es},
		"no decoder": {AggregateType: counterType, Factory: newCounter, EventStore: es},
		"no store":   {AggregateType: counterType, Factory: newCounter, Decoder: decodeCounter},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRepository(opts)
			assert.Error(t, err)
		})
	}
}

func TestRepository_LoadMissingIsNotFound(t *testing.T) {
	repo := newCounterRepo(t, store.NewMemoryEventStore())

	_, err := repo.Load(context.Background(), uuid.New())
	assert.True(t, errors.IsNotFound(err))

	c, err := repo.LoadOrNew(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, eventing.NoStream, c.GetVersion())
}

func TestRepository_SaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newCounterRepo(t, store.NewMemoryEventStore())

	c := repo.New(uuid.New())
	require.NoError(t, c.Increment(2))
	require.NoError(t, c.Increment(3))
	require.NoError(t, repo.Save(ctx, c))
	assert.Empty(t, c.GetUncommittedEvents())
	assert.Equal(t, int64(1), c.GetVersion())

	loaded, err := repo.Load(ctx, c.GetID())
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.total)
	assert.Equal(t, int64(1), loaded.GetVersion())

	require.NoError(t, loaded.Increment(1))
	require.NoError(t, repo.Save(ctx, loaded))

	again, err := repo.Load(ctx, c.GetID())
	require.NoError(t, err)
	assert.Equal(t, 6, again.total)
	assert.Equal(t, int64(2), again.GetVersion())
}

func TestRepository_SaveWithoutChangesSkipsStore(t *testing.T) {
	spy := &spyStore{IEventStore: store.NewMemoryEventStore()}
	repo := newCounterRepo(t, spy)

	require.NoError(t, repo.Save(context.Background(), repo.New(uuid.New())))
	assert.Equal(t, int32(0), spy.appends.Load())
}

func TestRepository_ConflictThenRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	repo := newCounterRepo(t, store.NewMemoryEventStore())

	seed := repo.New(uuid.New())
	require.NoError(t, seed.Increment(1))
	require.NoError(t, repo.Save(ctx, seed))

	first, err := repo.Load(ctx, seed.GetID())
	require.NoError(t, err)
	second, err := repo.Load(ctx, seed.GetID())
	require.NoError(t, err)

	require.NoError(t, first.Increment(10))
	require.NoError(t, second.Increment(100))

	require.NoError(t, repo.Save(ctx, first))
	err = repo.Save(ctx, second)
	require.True(t, errors.IsConcurrency(err), "error = %v", err)
	assert.Len(t, second.GetUncommittedEvents(), 1, "failed save keeps events")

	var conflict *eventing.ConcurrencyError
	require.True(t, stdErrors.As(err, &conflict))
	assert.Equal(t, int64(0), conflict.ExpectedVersion)
	assert.Equal(t, int64(1), conflict.ActualVersion)

	retry, err := repo.Load(ctx, seed.GetID())
	require.NoError(t, err)
	require.NoError(t, retry.Increment(100))
	require.NoError(t, repo.Save(ctx, retry))

	final, err := repo.Load(ctx, seed.GetID())
	require.NoError(t, err)
	assert.Equal(t, 111, final.total)
}

func TestRepository_ConcurrentSavesExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := newCounterRepo(t, store.NewMemoryEventStore())

	seed := repo.New(uuid.New())
	require.NoError(t, seed.Increment(1))
	require.NoError(t, repo.Save(ctx, seed))

	const writers = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		c, err := repo.Load(ctx, seed.GetID())
		require.NoError(t, err)
		require.NoError(t, c.Increment(1))

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := repo.Save(ctx, c)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.IsConcurrency(err):
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())
}

func TestRepository_StoreFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	ioErr := eventing.NewStoreError("append", "Counter-x", stdErrors.New("connection reset"))
	spy := &spyStore{IEventStore: store.NewMemoryEventStore(), appendErr: ioErr, readErr: ioErr}
	repo := newCounterRepo(t, spy)

	c := repo.New(uuid.New())
	require.NoError(t, c.Increment(1))
	err := repo.Save(ctx, c)
	assert.True(t, errors.IsUnavailable(err))
	var storeErr *eventing.EventStoreError
	assert.True(t, stdErrors.As(err, &storeErr))
	assert.Len(t, c.GetUncommittedEvents(), 1)

	_, err = repo.Load(ctx, c.GetID())
	assert.True(t, errors.IsUnavailable(err))
}

func TestRepository_CancelledContextPassesThrough(t *testing.T) {
	repo := newCounterRepo(t, store.NewMemoryEventStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := repo.New(uuid.New())
	require.NoError(t, c.Increment(1))
	assert.ErrorIs(t, repo.Save(ctx, c), context.Canceled)
	assert.Len(t, c.GetUncommittedEvents(), 1)
}

func TestRepository_UndecodableEventIsInternal(t *testing.T) {
	ctx := context.Background()
	es := store.NewMemoryEventStore()
	id := uuid.New()
	_, err := es.AppendToStream(ctx, eventing.StreamID(counterType, id), eventing.NoStream,
		[]*eventing.Event{eventing.NewEvent(counterType, id, "Reset", map[string]any{})})
	require.NoError(t, err)

	_, err = newCounterRepo(t, es).Load(ctx, id)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInternal))
}

func TestRepository_HistoryPage(t *testing.T) {
	ctx := context.Background()
	repo := newCounterRepo(t, store.NewMemoryEventStore())

	c := repo.New(uuid.New())
	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Increment(i))
	}
	require.NoError(t, repo.Save(ctx, c))

	page, err := repo.HistoryPage(ctx, c.GetID(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(2), page.Entries[0].Version)
	assert.Equal(t, "Incremented", page.Entries[0].EventType)
	assert.JSONEq(t, `{"by":3}`, string(page.Entries[0].Payload))

	empty, err := repo.HistoryPage(ctx, c.GetID(), 9, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Equal(t, 5, empty.Total)

	_, err = repo.HistoryPage(ctx, uuid.New(), 1, 10)
	assert.True(t, errors.IsNotFound(err))
}

func TestRepository_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := basicdb.New(database.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	es, err := sqlstore.NewSQLEventStore(db, "", logging.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, es.EnsureSchema(ctx))

	repo := newCounterRepo(t, es)
	c := repo.New(uuid.New())
	require.NoError(t, c.Increment(4))
	require.NoError(t, c.Increment(5))
	require.NoError(t, repo.Save(ctx, c))

	loaded, err := repo.Load(ctx, c.GetID())
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.total)
	assert.Equal(t, c.GetVersion(), loaded.GetVersion())

	stale := repo.New(c.GetID())
	require.NoError(t, stale.Increment(1))
	assert.True(t, errors.IsConcurrency(repo.Save(ctx, stale)))
}

func TestAggregate_UncommittedEventsAreCopied(t *testing.T) {
	c := newCounter(uuid.New())
	require.NoError(t, c.Increment(1))

	events := c.GetUncommittedEvents()
	events[0] = nil
	assert.NotNil(t, c.GetUncommittedEvents()[0])

	assert.True(t, errors.IsValidation(c.Increment(0)))
	assert.Len(t, c.GetUncommittedEvents(), 1)
}
