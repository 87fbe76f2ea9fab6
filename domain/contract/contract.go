// Package contract Contract 聚合：某个运营商在 Estate 下的产品与手续费合同
package contract

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estatemgmt/domain"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/errors"
	"estatemgmt/validation"
)

// AggregateType 事件流名前缀
const AggregateType = "Contract"

// Contract 聚合根。
// 运营商是否存在于 Estate 由领域服务在创建前校验。
type Contract struct {
	eventsourced.Aggregate

	created     bool
	estateID    uuid.UUID
	operatorID  uuid.UUID
	description string
	products    []Product
}

// New 构造空 Contract
func New(id uuid.UUID) *Contract {
	return &Contract{Aggregate: eventsourced.NewAggregate(id, AggregateType)}
}

func (c *Contract) IsCreated() bool       { return c.created }
func (c *Contract) EstateID() uuid.UUID   { return c.estateID }
func (c *Contract) OperatorID() uuid.UUID { return c.operatorID }

// Create 创建合同
func (c *Contract) Create(estateID, operatorID uuid.UUID, description string) error {
	if c.created {
		return errors.Validationf("Contract %s 已创建", c.GetID())
	}
	if err := validation.First(
		validation.ValidateID(estateID, "EstateID"),
		validation.ValidateID(operatorID, "运营商ID"),
		validation.ValidateRequired(description, "合同描述"),
	); err != nil {
		return err
	}

	eventsourced.Raise(c, ContractCreatedEvent{
		ContractID:  c.GetID(),
		EstateID:    estateID,
		OperatorID:  operatorID,
		Description: description,
	})
	return nil
}

// AddProduct 添加产品；产品名在合同内唯一（不区分大小写），value 为空表示可变面值
func (c *Contract) AddProduct(productID uuid.UUID, name, displayText string, value *decimal.Decimal) error {
	if err := c.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(productID, "产品ID"),
		validation.ValidateRequired(name, "产品名称"),
		validation.ValidateRequired(displayText, "产品显示文本"),
	); err != nil {
		return err
	}
	if value != nil {
		if err := validation.ValidatePositiveAmount(*value, "产品面值"); err != nil {
			return err
		}
	}
	for _, p := range c.products {
		if p.ProductID == productID {
			return errors.Validationf("产品 %s 已存在于合同 %s", productID, c.GetID())
		}
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) {
			return errors.Validationf("产品名称 %q 已存在于合同 %s", name, c.GetID())
		}
	}

	if value != nil {
		eventsourced.Raise(c, FixedValueProductAddedToContractEvent{
			ContractID:  c.GetID(),
			EstateID:    c.estateID,
			ProductID:   productID,
			ProductName: name,
			DisplayText: displayText,
			Value:       *value,
		})
		return nil
	}
	eventsourced.Raise(c, VariableValueProductAddedToContractEvent{
		ContractID:  c.GetID(),
		EstateID:    c.estateID,
		ProductID:   productID,
		ProductName: name,
		DisplayText: displayText,
	})
	return nil
}

// AddTransactionFee 为产品添加手续费；手续费 ID 在产品内唯一，取值不能为负
func (c *Contract) AddTransactionFee(productID, transactionFeeID uuid.UUID, description string, calculationType CalculationType, feeType FeeType, value decimal.Decimal) error {
	if err := c.ensureCreated(); err != nil {
		return err
	}
	if err := validation.First(
		validation.ValidateID(transactionFeeID, "手续费ID"),
		validation.ValidateRequired(description, "手续费描述"),
		validation.ValidateNonNegativeAmount(value, "手续费"),
	); err != nil {
		return err
	}
	if !calculationType.IsValid() {
		return errors.Validationf("手续费计算方式无效: %s", calculationType)
	}
	if !feeType.IsValid() {
		return errors.Validationf("手续费类型无效: %s", feeType)
	}
	product, ok := c.Product(productID)
	if !ok {
		return errors.Validationf("产品 %s 不存在于合同 %s", productID, c.GetID())
	}
	if _, exists := product.Fee(transactionFeeID); exists {
		return errors.Validationf("手续费 %s 已存在于产品 %s", transactionFeeID, productID)
	}

	eventsourced.Raise(c, TransactionFeeForProductAddedToContractEvent{
		ContractID:       c.GetID(),
		EstateID:         c.estateID,
		ProductID:        productID,
		TransactionFeeID: transactionFeeID,
		Description:      description,
		CalculationType:  calculationType,
		FeeType:          feeType,
		Value:            value,
	})
	return nil
}

// DisableTransactionFee 停用手续费；已停用时不产生事件
func (c *Contract) DisableTransactionFee(productID, transactionFeeID uuid.UUID) error {
	if err := c.ensureCreated(); err != nil {
		return err
	}
	product, ok := c.Product(productID)
	if !ok {
		return errors.Validationf("产品 %s 不存在于合同 %s", productID, c.GetID())
	}
	fee, ok := product.Fee(transactionFeeID)
	if !ok {
		return errors.Validationf("手续费 %s 不存在于产品 %s", transactionFeeID, productID)
	}
	if !fee.Enabled {
		return nil
	}

	eventsourced.Raise(c, TransactionFeeForProductDisabledEvent{
		ContractID:       c.GetID(),
		EstateID:         c.estateID,
		ProductID:        productID,
		TransactionFeeID: transactionFeeID,
	})
	return nil
}

// Product 按 ID 查找产品，返回副本
func (c *Contract) Product(productID uuid.UUID) (Product, bool) {
	if i := c.productIndex(productID); i >= 0 {
		return c.products[i].clone(), true
	}
	return Product{}, false
}

func (c *Contract) productIndex(productID uuid.UUID) int {
	for i := range c.products {
		if c.products[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// ApplyEvent 实现 eventsourced.IAggregate
func (c *Contract) ApplyEvent(evt domain.IDomainEvent) {
	switch ev := evt.(type) {
	case ContractCreatedEvent:
		c.created = true
		c.estateID = ev.EstateID
		c.operatorID = ev.OperatorID
		c.description = ev.Description
	case FixedValueProductAddedToContractEvent:
		value := ev.Value
		c.products = append(c.products, Product{
			ProductID:   ev.ProductID,
			Name:        ev.ProductName,
			DisplayText: ev.DisplayText,
			Value:       &value,
		})
	case VariableValueProductAddedToContractEvent:
		c.products = append(c.products, Product{
			ProductID:   ev.ProductID,
			Name:        ev.ProductName,
			DisplayText: ev.DisplayText,
		})
	case TransactionFeeForProductAddedToContractEvent:
		i := c.mustProduct(ev.ProductID)
		c.products[i].TransactionFees = append(c.products[i].TransactionFees, TransactionFee{
			TransactionFeeID: ev.TransactionFeeID,
			Description:      ev.Description,
			CalculationType:  ev.CalculationType,
			FeeType:          ev.FeeType,
			Value:            ev.Value,
			Enabled:          true,
		})
	case TransactionFeeForProductDisabledEvent:
		i := c.mustProduct(ev.ProductID)
		for j := range c.products[i].TransactionFees {
			if c.products[i].TransactionFees[j].TransactionFeeID == ev.TransactionFeeID {
				c.products[i].TransactionFees[j].Enabled = false
			}
		}
	default:
		panic(eventsourced.UnsupportedEvent(c, evt))
	}
	c.Advance()
}

// mustProduct 事件引用的产品必然已由之前的事件添加
func (c *Contract) mustProduct(productID uuid.UUID) int {
	i := c.productIndex(productID)
	if i < 0 {
		panic("contract: event references unknown product " + productID.String())
	}
	return i
}

func (c *Contract) ensureCreated() error {
	if !c.created {
		return errors.Validationf("Contract %s 尚未创建", c.GetID())
	}
	return nil
}

// Model Contract 的只读视图
//
// OperatorName 不在合同事件流中，由领域服务从所属 Estate 补全。
type Model struct {
	ContractID   uuid.UUID `json:"contract_id"`
	EstateID     uuid.UUID `json:"estate_id"`
	OperatorID   uuid.UUID `json:"operator_id"`
	OperatorName string    `json:"operator_name,omitempty"`
	Description  string    `json:"description"`
	Products     []Product `json:"products"`
	Version      int64     `json:"version"`
}

// Model 返回当前状态的深拷贝
func (c *Contract) Model() Model {
	products := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, p.clone())
	}
	return Model{
		ContractID:  c.GetID(),
		EstateID:    c.estateID,
		OperatorID:  c.operatorID,
		Description: c.description,
		Products:    products,
		Version:     c.GetVersion(),
	}
}

var _ eventsourced.IRecorder = (*Contract)(nil)
