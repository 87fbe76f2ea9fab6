package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/logging"
	"estatemgmt/messaging"
)

type fakeClient struct {
	added  []*redis.XAddArgs
	acked  []string
	addErr error
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	cmd := redis.NewStringCmd(ctx)
	if f.addErr != nil {
		cmd.SetErr(f.addErr)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func (f *fakeClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeClient) Close() error { return nil }

func newTestTransport(cl *fakeClient) *Transport {
	return newTransport(Config{
		StreamPrefix: "test:",
		GroupName:    "g",
		Logger:       logging.NewNoopLogger(),
	}, cl, false)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &messaging.Message{
		ID:        "msg-1",
		Type:      "MerchantCreatedEvent",
		Timestamp: ts,
		Payload:   map[string]any{"merchantName": "Shop"},
		Metadata:  map[string]any{messaging.MetaCorrelationID: "cor-123"},
	}

	values, err := encodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "MerchantCreatedEvent", values[fieldType])

	decoded, err := decodeMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, ts.UnixNano(), decoded.Timestamp.UnixNano())
	assert.JSONEq(t, `{"merchantName":"Shop"}`, string(decoded.Payload.(json.RawMessage)))
	assert.Equal(t, "cor-123", decoded.Metadata[messaging.MetaCorrelationID])
}

func TestDecodeRejectsMissingEnvelope(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]any{fieldType: "X"}})
	assert.Error(t, err)
}

func TestPublishWritesToSingleStream(t *testing.T) {
	cl := &fakeClient{}
	tpt := newTestTransport(cl)

	err := tpt.PublishAll(context.Background(), []messaging.IMessage{
		messaging.NewMessage("m1", "EstateCreatedEvent", nil),
		messaging.NewMessage("m2", "OperatorAddedToEstateEvent", nil),
	})
	require.NoError(t, err)
	require.Len(t, cl.added, 2)
	for _, a := range cl.added {
		assert.Equal(t, "test:events", a.Stream)
	}
	assert.Equal(t, "test:events", tpt.StreamName())
}

func TestPublishPropagatesRedisError(t *testing.T) {
	cl := &fakeClient{addErr: errors.New("connection refused")}
	tpt := newTestTransport(cl)

	err := tpt.Publish(context.Background(), messaging.NewMessage("m1", "X", nil))
	assert.ErrorIs(t, err, cl.addErr)
}

func TestHandleEntryDispatchesAndAcks(t *testing.T) {
	cl := &fakeClient{}
	tpt := newTestTransport(cl)

	var exact, all int
	require.NoError(t, tpt.Subscribe("EstateCreatedEvent", messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		exact++
		return nil
	})))
	require.NoError(t, tpt.Subscribe(messaging.WildcardType, messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		all++
		return errors.New("ignored")
	})))

	values, err := encodeMessage(messaging.NewMessage("m1", "EstateCreatedEvent", nil))
	require.NoError(t, err)
	tpt.handleEntry(context.Background(), "test:events", redis.XMessage{ID: "5-0", Values: values})
	tpt.handleEntry(context.Background(), "test:events", redis.XMessage{ID: "6-0", Values: map[string]any{}})

	assert.Equal(t, 1, exact)
	assert.Equal(t, 1, all)
	assert.Equal(t, []string{"5-0", "6-0"}, cl.acked, "undecodable entries are acked too")
}

func TestStartAndCloseWithoutSubscribers(t *testing.T) {
	tpt := newTestTransport(&fakeClient{})
	require.NoError(t, tpt.Start(context.Background()))
	assert.True(t, tpt.Stats().Running)
	assert.Error(t, tpt.Start(context.Background()))
	require.NoError(t, tpt.Close())
	assert.False(t, tpt.Stats().Running)
}
