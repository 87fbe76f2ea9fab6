// Package estate Estate 聚合：运营商与安全用户的归属方
package estate

import (
	"strings"

	"github.com/google/uuid"

	"estatemgmt/domain"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/errors"
	"estatemgmt/validation"
)

// AggregateType 事件流名前缀
const AggregateType = "Estate"

// Operator 已添加到 Estate 的运营商
type Operator struct {
	OperatorID                  uuid.UUID `json:"operator_id"`
	Name                        string    `json:"name"`
	RequireCustomMerchantNumber bool      `json:"require_custom_merchant_number"`
	RequireCustomTerminalNumber bool      `json:"require_custom_terminal_number"`
}

// SecurityUser 关联到 Estate 的安全用户
type SecurityUser struct {
	SecurityUserID uuid.UUID `json:"security_user_id"`
	EmailAddress   string    `json:"email_address"`
}

// Estate 聚合根
type Estate struct {
	eventsourced.Aggregate

	created       bool
	name          string
	operators     []Operator
	securityUsers []SecurityUser
}

// New 构造空 Estate
func New(id uuid.UUID) *Estate {
	return &Estate{Aggregate: eventsourced.NewAggregate(id, AggregateType)}
}

func (e *Estate) IsCreated() bool { return e.created }
func (e *Estate) Name() string    { return e.name }

// Create 创建 Estate
func (e *Estate) Create(name string) error {
	if e.created {
		return errors.Validationf("Estate %s 已创建", e.GetID())
	}
	if err := validation.ValidateRequired(name, "Estate名称"); err != nil {
		return err
	}
	eventsourced.Raise(e, EstateCreatedEvent{EstateID: e.GetID(), EstateName: name})
	return nil
}

// AddOperator 添加运营商；运营商名称在 Estate 内唯一（不区分大小写）
func (e *Estate) AddOperator(operatorID uuid.UUID, name string, requireCustomMerchantNumber, requireCustomTerminalNumber bool) error {
	if err := e.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(operatorID, "运营商ID"),
		validation.ValidateRequired(name, "运营商名称"),
	); err != nil {
		return err
	}
	if e.HasOperator(operatorID) {
		return errors.Validationf("运营商 %s 已存在于 Estate %s", operatorID, e.GetID())
	}
	for _, op := range e.operators {
		if strings.EqualFold(strings.TrimSpace(op.Name), strings.TrimSpace(name)) {
			return errors.Validationf("运营商名称 %q 已存在于 Estate %s", name, e.GetID())
		}
	}

	eventsourced.Raise(e, OperatorAddedToEstateEvent{
		EstateID:                    e.GetID(),
		OperatorID:                  operatorID,
		Name:                        name,
		RequireCustomMerchantNumber: requireCustomMerchantNumber,
		RequireCustomTerminalNumber: requireCustomTerminalNumber,
	})
	return nil
}

// AddSecurityUser 关联安全用户
func (e *Estate) AddSecurityUser(securityUserID uuid.UUID, emailAddress string) error {
	if err := e.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(securityUserID, "安全用户ID"),
		validation.ValidateEmail(emailAddress),
	); err != nil {
		return err
	}
	for _, u := range e.securityUsers {
		if u.SecurityUserID == securityUserID {
			return errors.Validationf("安全用户 %s 已关联到 Estate %s", securityUserID, e.GetID())
		}
	}

	eventsourced.Raise(e, SecurityUserAddedToEstateEvent{
		EstateID:       e.GetID(),
		SecurityUserID: securityUserID,
		EmailAddress:   emailAddress,
	})
	return nil
}

// Operator 按 ID 查找运营商
func (e *Estate) Operator(operatorID uuid.UUID) (Operator, bool) {
	for _, op := range e.operators {
		if op.OperatorID == operatorID {
			return op, true
		}
	}
	return Operator{}, false
}

func (e *Estate) HasOperator(operatorID uuid.UUID) bool {
	_, ok := e.Operator(operatorID)
	return ok
}

// ApplyEvent 实现 eventsourced.IAggregate
func (e *Estate) ApplyEvent(evt domain.IDomainEvent) {
	switch ev := evt.(type) {
	case EstateCreatedEvent:
		e.created = true
		e.name = ev.EstateName
	case OperatorAddedToEstateEvent:
		e.operators = append(e.operators, Operator{
			OperatorID:                  ev.OperatorID,
			Name:                        ev.Name,
			RequireCustomMerchantNumber: ev.RequireCustomMerchantNumber,
			RequireCustomTerminalNumber: ev.RequireCustomTerminalNumber,
		})
	case SecurityUserAddedToEstateEvent:
		e.securityUsers = append(e.securityUsers, SecurityUser{
			SecurityUserID: ev.SecurityUserID,
			EmailAddress:   ev.EmailAddress,
		})
	default:
		panic(eventsourced.UnsupportedEvent(e, evt))
	}
	e.Advance()
}

func (e *Estate) ensureCreated() error {
	if !e.created {
		return errors.Validationf("Estate %s 尚未创建", e.GetID())
	}
	return nil
}

// Model Estate 的只读视图
type Model struct {
	EstateID      uuid.UUID      `json:"estate_id"`
	Name          string         `json:"name"`
	Version       int64          `json:"version"`
	Operators     []Operator     `json:"operators"`
	SecurityUsers []SecurityUser `json:"security_users"`
}

// Model 返回当前状态的副本
func (e *Estate) Model() Model {
	return Model{
		EstateID:      e.GetID(),
		Name:          e.name,
		Version:       e.GetVersion(),
		Operators:     append([]Operator{}, e.operators...),
		SecurityUsers: append([]SecurityUser{}, e.securityUsers...),
	}
}

var _ eventsourced.IRecorder = (*Estate)(nil)
