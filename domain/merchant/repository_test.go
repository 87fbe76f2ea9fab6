package merchant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/eventing"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
)

func TestRepository_UpgradesVersionOneDeposits(t *testing.T) {
	ctx := context.Background()
	es := store.NewMemoryEventStore()
	merchantID, estateID, depositID := uuid.New(), uuid.New(), uuid.New()

	created := eventing.NewEvent(AggregateType, merchantID, EventMerchantCreated, MerchantCreatedEvent{
		MerchantID: merchantID, EstateID: estateID, MerchantName: "Test Merchant 1",
		DateCreated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	legacy := eventing.NewEvent(AggregateType, merchantID, EventMerchantDepositMade, json.RawMessage(`{
		"merchantId": "`+merchantID.String()+`",
		"estateId": "`+estateID.String()+`",
		"depositId": "`+depositID.String()+`",
		"reference": "legacy",
		"depositDateTime": "2024-01-02T00:00:00Z",
		"amount": "250"
	}`))
	_, err := es.AppendToStream(ctx, eventing.StreamID(AggregateType, merchantID), eventing.NoStream, []*eventing.Event{created, legacy})
	require.NoError(t, err)

	repo, err := NewRepository(es, logging.NewNoopLogger())
	require.NoError(t, err)

	m, err := repo.Load(ctx, merchantID)
	require.NoError(t, err)
	model := m.Model()
	require.Len(t, model.Deposits, 1)
	assert.Equal(t, DepositSourceManual, model.Deposits[0].Source)
	assert.True(t, decimal.NewFromInt(250).Equal(model.Balance))

	require.NoError(t, m.MakeDeposit(uuid.New(), DepositSourceAutomatic, decimal.NewFromInt(50), "auto", time.Now().UTC()))
	require.NoError(t, repo.Save(ctx, m))

	records, err := es.ReadStream(ctx, eventing.StreamID(AggregateType, merchantID))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[1].GetSchemaVersion())
	assert.Equal(t, 2, records[2].GetSchemaVersion())
	assert.Equal(t, 1, records[0].GetSchemaVersion(), "event types without upgraders stay at version one")
}
