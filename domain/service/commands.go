package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estatemgmt/domain/contract"
	"estatemgmt/domain/merchant"
)

// 可选的 ID 字段为 uuid.Nil 时由服务生成

type CreateEstateCommand struct {
	EstateID uuid.UUID
	Name     string
}

type AddOperatorCommand struct {
	EstateID                    uuid.UUID
	OperatorID                  uuid.UUID
	Name                        string
	RequireCustomMerchantNumber bool
	RequireCustomTerminalNumber bool
}

type CreateEstateUserCommand struct {
	EstateID     uuid.UUID
	EmailAddress string
	Password     string
	GivenName    string
	MiddleName   string
	FamilyName   string
}

type CreateMerchantCommand struct {
	EstateID   uuid.UUID
	MerchantID uuid.UUID
	Name       string
	Address    *merchant.Address
	Contact    *merchant.Contact
}

type AssignOperatorCommand struct {
	EstateID       uuid.UUID
	MerchantID     uuid.UUID
	OperatorID     uuid.UUID
	MerchantNumber string
	TerminalNumber string
}

type AddDeviceCommand struct {
	EstateID         uuid.UUID
	MerchantID       uuid.UUID
	DeviceIdentifier string
}

type MakeDepositCommand struct {
	EstateID        uuid.UUID
	MerchantID      uuid.UUID
	Source          merchant.DepositSource
	Amount          decimal.Decimal
	Reference       string
	DepositDateTime time.Time // 为空时取当前时间
}

type CreateMerchantUserCommand struct {
	EstateID     uuid.UUID
	MerchantID   uuid.UUID
	EmailAddress string
	Password     string
	GivenName    string
	MiddleName   string
	FamilyName   string
}

type CreateContractCommand struct {
	EstateID    uuid.UUID
	ContractID  uuid.UUID
	OperatorID  uuid.UUID
	Description string
}

type AddProductCommand struct {
	ContractID  uuid.UUID
	ProductID   uuid.UUID
	Name        string
	DisplayText string
	Value       *decimal.Decimal // 为空表示可变面值产品
}

type AddTransactionFeeCommand struct {
	ContractID      uuid.UUID
	ProductID       uuid.UUID
	Description     string
	CalculationType contract.CalculationType
	FeeType         contract.FeeType
	Value           decimal.Decimal
}

type DisableTransactionFeeCommand struct {
	ContractID       uuid.UUID
	ProductID        uuid.UUID
	TransactionFeeID uuid.UUID
}

func idOrNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
