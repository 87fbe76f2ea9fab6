package contract

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/domain"
	"estatemgmt/errors"
)

func createdContract(t *testing.T) *Contract {
	t.Helper()
	c := New(uuid.New())
	require.NoError(t, c.Create(uuid.New(), uuid.New(), "Safaricom Contract"))
	return c
}

func replay(t *testing.T, id uuid.UUID, history []domain.IDomainEvent) *Contract {
	t.Helper()
	c := New(id)
	for _, evt := range history {
		payload, err := json.Marshal(evt)
		require.NoError(t, err)
		decoded, err := DecodeEvent(evt.EventType(), payload)
		require.NoError(t, err)
		c.ApplyEvent(decoded)
	}
	return c
}

func TestContract_ProductWithFeeReplays(t *testing.T) {
	c := createdContract(t)
	productID, feeID := uuid.New(), uuid.New()

	require.NoError(t, c.AddProduct(productID, "Product A", "Product A", nil))
	require.NoError(t, c.AddTransactionFee(productID, feeID, "Merchant Commission",
		CalculationTypeFixed, FeeTypeMerchant, decimal.RequireFromString("0.05")))

	rebuilt := replay(t, c.GetID(), c.GetUncommittedEvents())
	model := rebuilt.Model()
	require.Len(t, model.Products, 1)
	require.Len(t, model.Products[0].TransactionFees, 1)

	fee := model.Products[0].TransactionFees[0]
	assert.Equal(t, feeID, fee.TransactionFeeID)
	assert.True(t, decimal.RequireFromString("0.05").Equal(fee.Value))
	assert.Equal(t, CalculationTypeFixed, fee.CalculationType)
	assert.Equal(t, FeeTypeMerchant, fee.FeeType)
	assert.True(t, fee.Enabled)
	assert.Nil(t, model.Products[0].Value)

	assert.Equal(t, c.Model(), model)
	assert.Equal(t, model, replay(t, c.GetID(), c.GetUncommittedEvents()).Model())
}

func TestContract_AddProductRejectsDuplicateName(t *testing.T) {
	c := createdContract(t)
	value := decimal.NewFromInt(100)

	require.NoError(t, c.AddProduct(uuid.New(), "100 KES Topup", "100 KES", &value))
	before := len(c.GetUncommittedEvents())

	assert.True(t, errors.IsValidation(c.AddProduct(uuid.New(), "100 kes topup", "x", nil)))
	assert.Len(t, c.GetUncommittedEvents(), before)

	zero := decimal.Zero
	assert.True(t, errors.IsValidation(c.AddProduct(uuid.New(), "Zero", "Zero", &zero)))

	product := c.Model().Products[0]
	require.NotNil(t, product.Value)
	assert.True(t, value.Equal(*product.Value))
}

func TestContract_AddTransactionFeeValidation(t *testing.T) {
	c := createdContract(t)
	productID, feeID := uuid.New(), uuid.New()
	require.NoError(t, c.AddProduct(productID, "Variable Topup", "Custom", nil))

	tests := []struct {
		name      string
		productID uuid.UUID
		calc      CalculationType
		feeType   FeeType
		value     string
	}{
		{name: "未知产品", productID: uuid.New(), value: "1"},
		{name: "负数费用", productID: productID, value: "-0.01"},
		{name: "无效计算方式", productID: productID, calc: CalculationType(7), value: "1"},
		{name: "无效费用类型", productID: productID, feeType: FeeType(9), value: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.AddTransactionFee(tt.productID, uuid.New(), "fee", tt.calc, tt.feeType, decimal.RequireFromString(tt.value))
			assert.True(t, errors.IsValidation(err), "error = %v", err)
		})
	}

	require.NoError(t, c.AddTransactionFee(productID, feeID, "free", CalculationTypePercentage, FeeTypeServiceProvider, decimal.Zero))
	err := c.AddTransactionFee(productID, feeID, "again", CalculationTypeFixed, FeeTypeMerchant, decimal.NewFromInt(1))
	assert.True(t, errors.IsValidation(err))
	assert.Len(t, c.GetUncommittedEvents(), 3)
}

func TestContract_DisableTransactionFee(t *testing.T) {
	c := createdContract(t)
	productID, feeID := uuid.New(), uuid.New()
	require.NoError(t, c.AddProduct(productID, "Product A", "A", nil))
	require.NoError(t, c.AddTransactionFee(productID, feeID, "fee", CalculationTypeFixed, FeeTypeMerchant, decimal.NewFromInt(1)))

	require.NoError(t, c.DisableTransactionFee(productID, feeID))
	events := len(c.GetUncommittedEvents())
	require.NoError(t, c.DisableTransactionFee(productID, feeID))
	assert.Len(t, c.GetUncommittedEvents(), events)

	product, ok := c.Product(productID)
	require.True(t, ok)
	fee, ok := product.Fee(feeID)
	require.True(t, ok)
	assert.False(t, fee.Enabled)

	assert.True(t, errors.IsValidation(c.DisableTransactionFee(productID, uuid.New())))
	assert.True(t, errors.IsValidation(c.DisableTransactionFee(uuid.New(), feeID)))

	assert.False(t, replay(t, c.GetID(), c.GetUncommittedEvents()).Model().Products[0].TransactionFees[0].Enabled)
}

func TestContract_CommandsRequireCreated(t *testing.T) {
	c := New(uuid.New())
	assert.True(t, errors.IsValidation(c.AddProduct(uuid.New(), "p", "p", nil)))
	assert.True(t, errors.IsValidation(c.Create(uuid.Nil, uuid.New(), "d")))
	assert.True(t, errors.IsValidation(c.Create(uuid.New(), uuid.New(), "")))
	assert.Empty(t, c.GetUncommittedEvents())
}

func TestContract_ModelIsACopy(t *testing.T) {
	c := createdContract(t)
	productID := uuid.New()
	require.NoError(t, c.AddProduct(productID, "Product A", "A", nil))
	require.NoError(t, c.AddTransactionFee(productID, uuid.New(), "fee", CalculationTypeFixed, FeeTypeMerchant, decimal.NewFromInt(1)))

	model := c.Model()
	model.Products[0].TransactionFees[0].Enabled = false
	assert.True(t, c.Model().Products[0].TransactionFees[0].Enabled)
}

func TestTransactionFee_Calculate(t *testing.T) {
	amount := decimal.NewFromInt(200)

	fixed := TransactionFee{CalculationType: CalculationTypeFixed, Value: decimal.RequireFromString("0.50")}
	assert.True(t, decimal.RequireFromString("0.5").Equal(fixed.Calculate(amount)))

	pct := TransactionFee{CalculationType: CalculationTypePercentage, Value: decimal.RequireFromString("0.025")}
	assert.True(t, decimal.NewFromInt(5).Equal(pct.Calculate(amount)))
}

func TestParseEnums(t *testing.T) {
	calc, err := ParseCalculationType("Percentage")
	require.NoError(t, err)
	assert.Equal(t, CalculationTypePercentage, calc)
	assert.Equal(t, "Percentage", calc.String())
	_, err = ParseCalculationType("tiered")
	assert.Error(t, err)

	feeType, err := ParseFeeType("serviceprovider")
	require.NoError(t, err)
	assert.Equal(t, FeeTypeServiceProvider, feeType)
	assert.Equal(t, "ServiceProvider", feeType.String())
	_, err = ParseFeeType("customer")
	assert.Error(t, err)
	assert.False(t, FeeType(5).IsValid())
}

type foreignEvent struct{}

func (foreignEvent) EventType() string { return "EstateCreatedEvent" }

func TestApplyEventPanicsOnProgrammingErrors(t *testing.T) {
	c := New(uuid.New())
	assert.Panics(t, func() { c.ApplyEvent(foreignEvent{}) })
	assert.Panics(t, func() {
		c.ApplyEvent(TransactionFeeForProductDisabledEvent{ProductID: uuid.New()})
	})
	_, err := DecodeEvent("EstateCreatedEvent", []byte(`{}`))
	assert.Error(t, err)
}
