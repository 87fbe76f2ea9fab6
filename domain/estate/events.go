package estate

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"estatemgmt/domain"
)

// 事件类型，持久化后不可更改
const (
	EventEstateCreated     = "EstateCreatedEvent"
	EventOperatorAdded     = "OperatorAddedToEstateEvent"
	EventSecurityUserAdded = "SecurityUserAddedToEstateEvent"
)

// Event Estate 聚合的封闭事件集合
type Event interface {
	domain.IDomainEvent
	estateEvent()
}

type EstateCreatedEvent struct {
	EstateID   uuid.UUID `json:"estateId"`
	EstateName string    `json:"estateName"`
}

type OperatorAddedToEstateEvent struct {
	EstateID                    uuid.UUID `json:"estateId"`
	OperatorID                  uuid.UUID `json:"operatorId"`
	Name                        string    `json:"name"`
	RequireCustomMerchantNumber bool      `json:"requireCustomMerchantNumber"`
	RequireCustomTerminalNumber bool      `json:"requireCustomTerminalNumber"`
}

type SecurityUserAddedToEstateEvent struct {
	EstateID       uuid.UUID `json:"estateId"`
	SecurityUserID uuid.UUID `json:"securityUserId"`
	EmailAddress   string    `json:"emailAddress"`
}

func (EstateCreatedEvent) EventType() string             { return EventEstateCreated }
func (OperatorAddedToEstateEvent) EventType() string     { return EventOperatorAdded }
func (SecurityUserAddedToEstateEvent) EventType() string { return EventSecurityUserAdded }

func (EstateCreatedEvent) estateEvent()             {}
func (OperatorAddedToEstateEvent) estateEvent()     {}
func (SecurityUserAddedToEstateEvent) estateEvent() {}

// DecodeEvent 按事件类型解码持久化载荷
func DecodeEvent(eventType string, payload []byte) (domain.IDomainEvent, error) {
	switch eventType {
	case EventEstateCreated:
		return decode[EstateCreatedEvent](payload)
	case EventOperatorAdded:
		return decode[OperatorAddedToEstateEvent](payload)
	case EventSecurityUserAdded:
		return decode[SecurityUserAddedToEstateEvent](payload)
	default:
		return nil, fmt.Errorf("estate: unknown event type %q", eventType)
	}
}

func decode[E Event](payload []byte) (domain.IDomainEvent, error) {
	var evt E
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("estate: decode %s: %w", evt.EventType(), err)
	}
	return evt, nil
}
