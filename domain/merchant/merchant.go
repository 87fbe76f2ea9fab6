// Package merchant Merchant 聚合：隶属于某个 Estate 的商户
package merchant

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estatemgmt/domain"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/errors"
	"estatemgmt/validation"
)

// AggregateType 事件流名前缀
const AggregateType = "Merchant"

// Merchant 聚合根。
// 运营商是否存在于所属 Estate 由领域服务校验，聚合只检查自身状态。
type Merchant struct {
	eventsourced.Aggregate

	created       bool
	estateID      uuid.UUID
	name          string
	createdAt     time.Time
	address       *Address
	contact       *Contact
	operators     []OperatorAssignment
	devices       []Device
	securityUsers []SecurityUser
	deposits      []Deposit
}

// New 构造空 Merchant
func New(id uuid.UUID) *Merchant {
	return &Merchant{Aggregate: eventsourced.NewAggregate(id, AggregateType)}
}

func (m *Merchant) IsCreated() bool     { return m.created }
func (m *Merchant) EstateID() uuid.UUID { return m.estateID }
func (m *Merchant) Name() string        { return m.name }

// Create 创建商户；地址与联系人可选，提供时各产生一个事件
func (m *Merchant) Create(estateID uuid.UUID, name string, address *Address, contact *Contact, createdAt time.Time) error {
	if m.created {
		return errors.Validationf("Merchant %s 已创建", m.GetID())
	}
	if err := validation.First(
		validation.ValidateID(estateID, "EstateID"),
		validation.ValidateRequired(name, "商户名称"),
	); err != nil {
		return err
	}
	if address != nil {
		if err := validation.ValidateRequired(address.AddressLine1, "地址"); err != nil {
			return err
		}
	}
	if contact != nil {
		if err := validation.ValidateRequired(contact.ContactName, "联系人"); err != nil {
			return err
		}
		if contact.EmailAddress != "" {
			if err := validation.ValidateEmail(contact.EmailAddress); err != nil {
				return err
			}
		}
	}
	if createdAt.IsZero() {
		return errors.NewValidationError("商户创建时间不能为空")
	}

	eventsourced.Raise(m, MerchantCreatedEvent{
		MerchantID:   m.GetID(),
		EstateID:     estateID,
		MerchantName: name,
		DateCreated:  createdAt.UTC(),
	})
	if address != nil {
		eventsourced.Raise(m, AddressAddedEvent{
			MerchantID: m.GetID(),
			EstateID:   estateID,
			AddressID:  uuid.New(),
			Address:    *address,
		})
	}
	if contact != nil {
		eventsourced.Raise(m, ContactAddedEvent{
			MerchantID: m.GetID(),
			EstateID:   estateID,
			ContactID:  uuid.New(),
			Contact:    *contact,
		})
	}
	return nil
}

// AssignOperator 分配运营商，同一运营商只能分配一次
func (m *Merchant) AssignOperator(operatorID uuid.UUID, name, merchantNumber, terminalNumber string) error {
	if err := m.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(operatorID, "运营商ID"),
		validation.ValidateRequired(name, "运营商名称"),
	); err != nil {
		return err
	}
	if m.HasOperator(operatorID) {
		return errors.Validationf("运营商 %s 已分配给商户 %s", operatorID, m.GetID())
	}

	eventsourced.Raise(m, OperatorAssignedToMerchantEvent{
		MerchantID:     m.GetID(),
		EstateID:       m.estateID,
		OperatorID:     operatorID,
		Name:           name,
		MerchantNumber: merchantNumber,
		TerminalNumber: terminalNumber,
	})
	return nil
}

// AddDevice 添加设备，设备标识在商户内唯一
func (m *Merchant) AddDevice(deviceID uuid.UUID, deviceIdentifier string) error {
	if err := m.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(deviceID, "设备ID"),
		validation.ValidateRequired(deviceIdentifier, "设备标识"),
	); err != nil {
		return err
	}
	for _, d := range m.devices {
		if d.DeviceID == deviceID || strings.EqualFold(d.DeviceIdentifier, deviceIdentifier) {
			return errors.Validationf("设备 %s 已添加到商户 %s", deviceIdentifier, m.GetID())
		}
	}

	eventsourced.Raise(m, DeviceAddedToMerchantEvent{
		MerchantID:       m.GetID(),
		EstateID:         m.estateID,
		DeviceID:         deviceID,
		DeviceIdentifier: deviceIdentifier,
	})
	return nil
}

// AddSecurityUser 关联安全用户
func (m *Merchant) AddSecurityUser(securityUserID uuid.UUID, emailAddress string) error {
	if err := m.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(securityUserID, "安全用户ID"),
		validation.ValidateEmail(emailAddress),
	); err != nil {
		return err
	}
	for _, u := range m.securityUsers {
		if u.SecurityUserID == securityUserID {
			return errors.Validationf("安全用户 %s 已关联到商户 %s", securityUserID, m.GetID())
		}
	}

	eventsourced.Raise(m, SecurityUserAddedToMerchantEvent{
		MerchantID:     m.GetID(),
		EstateID:       m.estateID,
		SecurityUserID: securityUserID,
		EmailAddress:   emailAddress,
	})
	return nil
}

// MakeDeposit 入账；金额必须大于 0，
// 与已有入账的 (reference, 时间, 金额) 完全相同时视为重复提交并拒绝
func (m *Merchant) MakeDeposit(depositID uuid.UUID, source DepositSource, amount decimal.Decimal, reference string, depositDateTime time.Time) error {
	if err := m.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(depositID, "入账ID"),
		validation.ValidatePositiveAmount(amount, "入账金额"),
	); err != nil {
		return err
	}
	if !source.IsValid() {
		return errors.Validationf("入账来源无效: %s", source)
	}
	if depositDateTime.IsZero() {
		return errors.NewValidationError("入账时间不能为空")
	}

	at := depositDateTime.UTC()
	for _, d := range m.deposits {
		if d.DepositID == depositID {
			return errors.Validationf("入账 %s 已存在", depositID)
		}
		if d.Reference == reference && d.DepositDateTime.Equal(at) && d.Amount.Equal(amount) {
			return errors.Validationf("重复的入账: reference=%q amount=%s", reference, amount)
		}
	}

	eventsourced.Raise(m, MerchantDepositMadeEvent{
		MerchantID:      m.GetID(),
		EstateID:        m.estateID,
		DepositID:       depositID,
		Source:          source,
		Reference:       reference,
		DepositDateTime: at,
		Amount:          amount,
	})
	return nil
}

// HasOperator 运营商是否已分配
func (m *Merchant) HasOperator(operatorID uuid.UUID) bool {
	for _, op := range m.operators {
		if op.OperatorID == operatorID {
			return true
		}
	}
	return false
}

// Balance 入账总额
func (m *Merchant) Balance() decimal.Decimal {
	balance := decimal.Zero
	for _, d := range m.deposits {
		balance = balance.Add(d.Amount)
	}
	return balance
}

// ApplyEvent 实现 eventsourced.IAggregate
func (m *Merchant) ApplyEvent(evt domain.IDomainEvent) {
	switch ev := evt.(type) {
	case MerchantCreatedEvent:
		m.created = true
		m.estateID = ev.EstateID
		m.name = ev.MerchantName
		m.createdAt = ev.DateCreated
	case AddressAddedEvent:
		address := ev.Address
		m.address = &address
	case ContactAddedEvent:
		contact := ev.Contact
		m.contact = &contact
	case OperatorAssignedToMerchantEvent:
		m.operators = append(m.operators, OperatorAssignment{
			OperatorID:     ev.OperatorID,
			Name:           ev.Name,
			MerchantNumber: ev.MerchantNumber,
			TerminalNumber: ev.TerminalNumber,
		})
	case DeviceAddedToMerchantEvent:
		m.devices = append(m.devices, Device{DeviceID: ev.DeviceID, DeviceIdentifier: ev.DeviceIdentifier})
	case SecurityUserAddedToMerchantEvent:
		m.securityUsers = append(m.securityUsers, SecurityUser{
			SecurityUserID: ev.SecurityUserID,
			EmailAddress:   ev.EmailAddress,
		})
	case MerchantDepositMadeEvent:
		m.deposits = append(m.deposits, Deposit{
			DepositID:       ev.DepositID,
			Source:          ev.Source,
			Reference:       ev.Reference,
			DepositDateTime: ev.DepositDateTime,
			Amount:          ev.Amount,
		})
	default:
		panic(eventsourced.UnsupportedEvent(m, evt))
	}
	m.Advance()
}

func (m *Merchant) ensureCreated() error {
	if !m.created {
		return errors.Validationf("Merchant %s 尚未创建", m.GetID())
	}
	return nil
}

// Model Merchant 的只读视图
type Model struct {
	MerchantID    uuid.UUID            `json:"merchant_id"`
	EstateID      uuid.UUID            `json:"estate_id"`
	Name          string               `json:"name"`
	CreatedAt     time.Time            `json:"created_at"`
	Address       *Address             `json:"address,omitempty"`
	Contact       *Contact             `json:"contact,omitempty"`
	Operators     []OperatorAssignment `json:"operators"`
	Devices       []Device             `json:"devices"`
	SecurityUsers []SecurityUser       `json:"security_users"`
	Deposits      []Deposit            `json:"deposits"`
	Balance       decimal.Decimal      `json:"balance"`
	Version       int64                `json:"version"`
}

// Model 返回当前状态的副本
func (m *Merchant) Model() Model {
	model := Model{
		MerchantID:    m.GetID(),
		EstateID:      m.estateID,
		Name:          m.name,
		CreatedAt:     m.createdAt,
		Operators:     append([]OperatorAssignment{}, m.operators...),
		Devices:       append([]Device{}, m.devices...),
		SecurityUsers: append([]SecurityUser{}, m.securityUsers...),
		Deposits:      append([]Deposit{}, m.deposits...),
		Balance:       m.Balance(),
		Version:       m.GetVersion(),
	}
	if m.address != nil {
		address := *m.address
		model.Address = &address
	}
	if m.contact != nil {
		contact := *m.contact
		model.Contact = &contact
	}
	return model
}

var _ eventsourced.IRecorder = (*Merchant)(nil)
