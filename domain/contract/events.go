package contract

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estatemgmt/domain"
)

// 事件类型，持久化后不可更改
const (
	EventContractCreated        = "ContractCreatedEvent"
	EventFixedValueProductAdded = "FixedValueProductAddedToContractEvent"
	EventVariableProductAdded   = "VariableValueProductAddedToContractEvent"
	EventTransactionFeeAdded    = "TransactionFeeForProductAddedToContractEvent"
	EventTransactionFeeDisabled = "TransactionFeeForProductDisabledEvent"
)

// Event Contract 聚合的封闭事件集合
type Event interface {
	domain.IDomainEvent
	contractEvent()
}

type ContractCreatedEvent struct {
	ContractID  uuid.UUID `json:"contractId"`
	EstateID    uuid.UUID `json:"estateId"`
	OperatorID  uuid.UUID `json:"operatorId"`
	Description string    `json:"description"`
}

type FixedValueProductAddedToContractEvent struct {
	ContractID  uuid.UUID       `json:"contractId"`
	EstateID    uuid.UUID       `json:"estateId"`
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	DisplayText string          `json:"displayText"`
	Value       decimal.Decimal `json:"value"`
}

type VariableValueProductAddedToContractEvent struct {
	ContractID  uuid.UUID `json:"contractId"`
	EstateID    uuid.UUID `json:"estateId"`
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	DisplayText string    `json:"displayText"`
}

type TransactionFeeForProductAddedToContractEvent struct {
	ContractID       uuid.UUID       `json:"contractId"`
	EstateID         uuid.UUID       `json:"estateId"`
	ProductID        uuid.UUID       `json:"productId"`
	TransactionFeeID uuid.UUID       `json:"transactionFeeId"`
	Description      string          `json:"description"`
	CalculationType  CalculationType `json:"calculationType"`
	FeeType          FeeType         `json:"feeType"`
	Value            decimal.Decimal `json:"value"`
}

type TransactionFeeForProductDisabledEvent struct {
	ContractID       uuid.UUID `json:"contractId"`
	EstateID         uuid.UUID `json:"estateId"`
	ProductID        uuid.UUID `json:"productId"`
	TransactionFeeID uuid.UUID `json:"transactionFeeId"`
}

func (ContractCreatedEvent) EventType() string                         { return EventContractCreated }
func (FixedValueProductAddedToContractEvent) EventType() string        { return EventFixedValueProductAdded }
func (VariableValueProductAddedToContractEvent) EventType() string     { return EventVariableProductAdded }
func (TransactionFeeForProductAddedToContractEvent) EventType() string { return EventTransactionFeeAdded }
func (TransactionFeeForProductDisabledEvent) EventType() string        { return EventTransactionFeeDisabled }

func (ContractCreatedEvent) contractEvent()                         {}
func (FixedValueProductAddedToContractEvent) contractEvent()        {}
func (VariableValueProductAddedToContractEvent) contractEvent()     {}
func (TransactionFeeForProductAddedToContractEvent) contractEvent() {}
func (TransactionFeeForProductDisabledEvent) contractEvent()        {}

// DecodeEvent 按事件类型解码持久化载荷
func DecodeEvent(eventType string, payload []byte) (domain.IDomainEvent, error) {
	switch eventType {
	case EventContractCreated:
		return decode[ContractCreatedEvent](payload)
	case EventFixedValueProductAdded:
		return decode[FixedValueProductAddedToContractEvent](payload)
	case EventVariableProductAdded:
		return decode[VariableValueProductAddedToContractEvent](payload)
	case EventTransactionFeeAdded:
		return decode[TransactionFeeForProductAddedToContractEvent](payload)
	case EventTransactionFeeDisabled:
		return decode[TransactionFeeForProductDisabledEvent](payload)
	default:
		return nil, fmt.Errorf("contract: unknown event type %q", eventType)
	}
}

func decode[E Event](payload []byte) (domain.IDomainEvent, error) {
	var evt E
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("contract: decode %s: %w", evt.EventType(), err)
	}
	return evt, nil
}
