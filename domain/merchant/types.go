package merchant

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address 商户地址
type Address struct {
	AddressLine1 string `json:"addressLine1"`
	Town         string `json:"town,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Contact 商户联系人
type Contact struct {
	ContactName  string `json:"contactName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

// OperatorAssignment 分配给商户的运营商
type OperatorAssignment struct {
	OperatorID     uuid.UUID `json:"operator_id"`
	Name           string    `json:"name"`
	MerchantNumber string    `json:"merchant_number,omitempty"`
	TerminalNumber string    `json:"terminal_number,omitempty"`
}

// Device 商户设备
type Device struct {
	DeviceID         uuid.UUID `json:"device_id"`
	DeviceIdentifier string    `json:"device_identifier"`
}

// SecurityUser 关联到商户的安全用户
type SecurityUser struct {
	SecurityUserID uuid.UUID `json:"security_user_id"`
	EmailAddress   string    `json:"email_address"`
}

// Deposit 入账记录
type Deposit struct {
	DepositID       uuid.UUID       `json:"deposit_id"`
	Source          DepositSource   `json:"source"`
	Reference       string          `json:"reference"`
	DepositDateTime time.Time       `json:"deposit_date_time"`
	Amount          decimal.Decimal `json:"amount"`
}

// DepositSource 入账来源
type DepositSource int

const (
	DepositSourceNotSet DepositSource = iota
	DepositSourceManual
	DepositSourceAutomatic
)

func (s DepositSource) String() string {
	switch s {
	case DepositSourceManual:
		return "Manual"
	case DepositSourceAutomatic:
		return "Automatic"
	default:
		return "NotSet"
	}
}

// IsValid 只有 Manual 与 Automatic 可用于入账
func (s DepositSource) IsValid() bool {
	return s == DepositSourceManual || s == DepositSourceAutomatic
}

// ParseDepositSource 解析入账来源名称（不区分大小写）
func ParseDepositSource(s string) (DepositSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return DepositSourceManual, nil
	case "automatic":
		return DepositSourceAutomatic, nil
	default:
		return DepositSourceNotSet, fmt.Errorf("unknown deposit source %q", s)
	}
}
