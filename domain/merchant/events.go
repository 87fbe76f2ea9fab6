package merchant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estatemgmt/domain"
)

// 事件类型，持久化后不可更改
const (
	EventMerchantCreated     = "MerchantCreatedEvent"
	EventAddressAdded        = "AddressAddedEvent"
	EventContactAdded        = "ContactAddedEvent"
	EventOperatorAssigned    = "OperatorAssignedToMerchantEvent"
	EventDeviceAdded         = "DeviceAddedToMerchantEvent"
	EventSecurityUserAdded   = "SecurityUserAddedToMerchantEvent"
	EventMerchantDepositMade = "MerchantDepositMadeEvent"
)

// Event Merchant 聚合的封闭事件集合
type Event interface {
	domain.IDomainEvent
	merchantEvent()
}

type MerchantCreatedEvent struct {
	MerchantID   uuid.UUID `json:"merchantId"`
	EstateID     uuid.UUID `json:"estateId"`
	MerchantName string    `json:"merchantName"`
	DateCreated  time.Time `json:"dateCreated"`
}

type AddressAddedEvent struct {
	MerchantID uuid.UUID `json:"merchantId"`
	EstateID   uuid.UUID `json:"estateId"`
	AddressID  uuid.UUID `json:"addressId"`
	Address    Address   `json:"address"`
}

type ContactAddedEvent struct {
	MerchantID uuid.UUID `json:"merchantId"`
	EstateID   uuid.UUID `json:"estateId"`
	ContactID  uuid.UUID `json:"contactId"`
	Contact    Contact   `json:"contact"`
}

type OperatorAssignedToMerchantEvent struct {
	MerchantID     uuid.UUID `json:"merchantId"`
	EstateID       uuid.UUID `json:"estateId"`
	OperatorID     uuid.UUID `json:"operatorId"`
	Name           string    `json:"name"`
	MerchantNumber string    `json:"merchantNumber,omitempty"`
	TerminalNumber string    `json:"terminalNumber,omitempty"`
}

type DeviceAddedToMerchantEvent struct {
	MerchantID       uuid.UUID `json:"merchantId"`
	EstateID         uuid.UUID `json:"estateId"`
	DeviceID         uuid.UUID `json:"deviceId"`
	DeviceIdentifier string    `json:"deviceIdentifier"`
}

type SecurityUserAddedToMerchantEvent struct {
	MerchantID     uuid.UUID `json:"merchantId"`
	EstateID       uuid.UUID `json:"estateId"`
	SecurityUserID uuid.UUID `json:"securityUserId"`
	EmailAddress   string    `json:"emailAddress"`
}

type MerchantDepositMadeEvent struct {
	MerchantID      uuid.UUID       `json:"merchantId"`
	EstateID        uuid.UUID       `json:"estateId"`
	DepositID       uuid.UUID       `json:"depositId"`
	Source          DepositSource   `json:"source"`
	Reference       string          `json:"reference"`
	DepositDateTime time.Time       `json:"depositDateTime"`
	Amount          decimal.Decimal `json:"amount"`
}

func (MerchantCreatedEvent) EventType() string             { return EventMerchantCreated }
func (AddressAddedEvent) EventType() string                { return EventAddressAdded }
func (ContactAddedEvent) EventType() string                { return EventContactAdded }
func (OperatorAssignedToMerchantEvent) EventType() string  { return EventOperatorAssigned }
func (DeviceAddedToMerchantEvent) EventType() string       { return EventDeviceAdded }
func (SecurityUserAddedToMerchantEvent) EventType() string { return EventSecurityUserAdded }
func (MerchantDepositMadeEvent) EventType() string         { return EventMerchantDepositMade }

func (MerchantCreatedEvent) merchantEvent()             {}
func (AddressAddedEvent) merchantEvent()                {}
func (ContactAddedEvent) merchantEvent()                {}
func (OperatorAssignedToMerchantEvent) merchantEvent()  {}
func (DeviceAddedToMerchantEvent) merchantEvent()       {}
func (SecurityUserAddedToMerchantEvent) merchantEvent() {}
func (MerchantDepositMadeEvent) merchantEvent()         {}

// DecodeEvent 按事件类型解码持久化载荷
func DecodeEvent(eventType string, payload []byte) (domain.IDomainEvent, error) {
	switch eventType {
	case EventMerchantCreated:
		return decode[MerchantCreatedEvent](payload)
	case EventAddressAdded:
		return decode[AddressAddedEvent](payload)
	case EventContactAdded:
		return decode[ContactAddedEvent](payload)
	case EventOperatorAssigned:
		return decode[OperatorAssignedToMerchantEvent](payload)
	case EventDeviceAdded:
		return decode[DeviceAddedToMerchantEvent](payload)
	case EventSecurityUserAdded:
		return decode[SecurityUserAddedToMerchantEvent](payload)
	case EventMerchantDepositMade:
		return decode[MerchantDepositMadeEvent](payload)
	default:
		return nil, fmt.Errorf("merchant: unknown event type %q", eventType)
	}
}

func decode[E Event](payload []byte) (domain.IDomainEvent, error) {
	var evt E
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("merchant: decode %s: %w", evt.EventType(), err)
	}
	return evt, nil
}
