package contract

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalculationType 手续费取值方式
type CalculationType int

const (
	CalculationTypeFixed CalculationType = iota
	CalculationTypePercentage
)

func (c CalculationType) String() string {
	switch c {
	case CalculationTypeFixed:
		return "Fixed"
	case CalculationTypePercentage:
		return "Percentage"
	default:
		return fmt.Sprintf("CalculationType(%d)", int(c))
	}
}

func (c CalculationType) IsValid() bool {
	return c == CalculationTypeFixed || c == CalculationTypePercentage
}

// ParseCalculationType 解析名称（不区分大小写）
func ParseCalculationType(s string) (CalculationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return CalculationTypeFixed, nil
	case "percentage":
		return CalculationTypePercentage, nil
	default:
		return 0, fmt.Errorf("unknown calculation type %q", s)
	}
}

// FeeType 手续费承担方
type FeeType int

const (
	FeeTypeMerchant FeeType = iota
	FeeTypeServiceProvider
)

func (f FeeType) String() string {
	switch f {
	case FeeTypeMerchant:
		return "Merchant"
	case FeeTypeServiceProvider:
		return "ServiceProvider"
	default:
		return fmt.Sprintf("FeeType(%d)", int(f))
	}
}

func (f FeeType) IsValid() bool {
	return f == FeeTypeMerchant || f == FeeTypeServiceProvider
}

// ParseFeeType 解析名称（不区分大小写）
func ParseFeeType(s string) (FeeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "merchant":
		return FeeTypeMerchant, nil
	case "serviceprovider", "service_provider":
		return FeeTypeServiceProvider, nil
	default:
		return 0, fmt.Errorf("unknown fee type %q", s)
	}
}

// TransactionFee 产品下的交易手续费
type TransactionFee struct {
	TransactionFeeID uuid.UUID       `json:"transaction_fee_id"`
	Description      string          `json:"description"`
	CalculationType  CalculationType `json:"calculation_type"`
	FeeType          FeeType         `json:"fee_type"`
	Value            decimal.Decimal `json:"value"`
	Enabled          bool            `json:"enabled"`
}

// Calculate 按交易金额计算手续费：Fixed 直接取值，Percentage 以小数比例乘以交易金额
func (f TransactionFee) Calculate(transactionAmount decimal.Decimal) decimal.Decimal {
	if f.CalculationType == CalculationTypePercentage {
		return transactionAmount.Mul(f.Value)
	}
	return f.Value
}

// Product 合同产品；Value 为空表示可变面值产品
type Product struct {
	ProductID       uuid.UUID        `json:"product_id"`
	Name            string           `json:"name"`
	DisplayText     string           `json:"display_text"`
	Value           *decimal.Decimal `json:"value,omitempty"`
	TransactionFees []TransactionFee `json:"transaction_fees"`
}

// Fee 按 ID 查找手续费
func (p Product) Fee(transactionFeeID uuid.UUID) (TransactionFee, bool) {
	for _, f := range p.TransactionFees {
		if f.TransactionFeeID == transactionFeeID {
			return f, true
		}
	}
	return TransactionFee{}, false
}

func (p Product) clone() Product {
	c := p
	if p.Value != nil {
		v := *p.Value
		c.Value = &v
	}
	c.TransactionFees = append([]TransactionFee{}, p.TransactionFees...)
	return c
}
