package service

import (
	"context"

	"github.com/google/uuid"

	"estatemgmt/domain/contract"
	"estatemgmt/domain/estate"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/errors"
	"estatemgmt/logging"
	"estatemgmt/validation"
)

// ContractDomainService Contract 领域服务，Estate 只读
type ContractDomainService struct {
	contracts eventsourced.IRepository[*contract.Contract]
	estates   eventsourced.IRepository[*estate.Estate]
	logger    logging.ILogger
}

func NewContractDomainService(
	contracts eventsourced.IRepository[*contract.Contract],
	estates eventsourced.IRepository[*estate.Estate],
	logger logging.ILogger,
) *ContractDomainService {
	if logger == nil {
		logger = logging.ComponentLogger("service.contract")
	}
	return &ContractDomainService{contracts: contracts, estates: estates, logger: logger}
}

// CreateContract 运营商必须已添加到 Estate
func (s *ContractDomainService) CreateContract(ctx context.Context, cmd CreateContractCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.EstateID, "EstateID"),
		validation.ValidateID(cmd.OperatorID, "运营商ID"),
		validation.ValidateRequired(cmd.Description, "合同描述"),
	); err != nil {
		return uuid.Nil, err
	}
	contractID := idOrNew(cmd.ContractID)

	agg, owner, err := loadPair(ctx,
		func(ctx context.Context) (*contract.Contract, error) { return s.contracts.LoadOrNew(ctx, contractID) },
		func(ctx context.Context) (*estate.Estate, error) { return s.estates.Load(ctx, cmd.EstateID) },
	)
	if err != nil {
		return uuid.Nil, err
	}
	if !owner.HasOperator(cmd.OperatorID) {
		return uuid.Nil, errors.Validationf("运营商 %s 不存在于 Estate %s", cmd.OperatorID, cmd.EstateID)
	}

	if err := agg.Create(cmd.EstateID, cmd.OperatorID, cmd.Description); err != nil {
		return uuid.Nil, err
	}
	if err := s.contracts.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "contract created",
		logging.Stringer("contract_id", contractID),
		logging.Stringer("operator_id", cmd.OperatorID))
	return contractID, nil
}

// AddProductToContract 添加产品，返回产品 ID
func (s *ContractDomainService) AddProductToContract(ctx context.Context, cmd AddProductCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.ContractID, "合同ID"),
		validation.ValidateRequired(cmd.Name, "产品名称"),
	); err != nil {
		return uuid.Nil, err
	}
	displayText := cmd.DisplayText
	if displayText == "" {
		displayText = cmd.Name
	}
	productID := idOrNew(cmd.ProductID)

	agg, err := s.contracts.Load(ctx, cmd.ContractID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := agg.AddProduct(productID, cmd.Name, displayText, cmd.Value); err != nil {
		return uuid.Nil, err
	}
	if err := s.contracts.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "product added to contract",
		logging.Stringer("contract_id", cmd.ContractID),
		logging.Stringer("product_id", productID))
	return productID, nil
}

// AddTransactionFeeForProductToContract 添加手续费，返回手续费 ID
func (s *ContractDomainService) AddTransactionFeeForProductToContract(ctx context.Context, cmd AddTransactionFeeCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.ContractID, "合同ID"),
		validation.ValidateID(cmd.ProductID, "产品ID"),
		validation.ValidateNonNegativeAmount(cmd.Value, "手续费"),
	); err != nil {
		return uuid.Nil, err
	}

	agg, err := s.contracts.Load(ctx, cmd.ContractID)
	if err != nil {
		return uuid.Nil, err
	}
	feeID := uuid.New()
	if err := agg.AddTransactionFee(cmd.ProductID, feeID, cmd.Description, cmd.CalculationType, cmd.FeeType, cmd.Value); err != nil {
		return uuid.Nil, err
	}
	if err := s.contracts.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "transaction fee added",
		logging.Stringer("contract_id", cmd.ContractID),
		logging.Stringer("product_id", cmd.ProductID),
		logging.Stringer("transaction_fee_id", feeID))
	return feeID, nil
}

// DisableTransactionFeeForProduct 停用手续费
func (s *ContractDomainService) DisableTransactionFeeForProduct(ctx context.Context, cmd DisableTransactionFeeCommand) error {
	if err := validation.First(
		validation.ValidateID(cmd.ContractID, "合同ID"),
		validation.ValidateID(cmd.ProductID, "产品ID"),
		validation.ValidateID(cmd.TransactionFeeID, "手续费ID"),
	); err != nil {
		return err
	}

	agg, err := s.contracts.Load(ctx, cmd.ContractID)
	if err != nil {
		return err
	}
	if err := agg.DisableTransactionFee(cmd.ProductID, cmd.TransactionFeeID); err != nil {
		return err
	}
	return s.contracts.Save(ctx, agg)
}

// GetContract 重放事件流得到合同视图，运营商名称取自所属 Estate
func (s *ContractDomainService) GetContract(ctx context.Context, contractID uuid.UUID) (contract.Model, error) {
	agg, err := s.contracts.Load(ctx, contractID)
	if err != nil {
		return contract.Model{}, err
	}
	model := agg.Model()

	owner, err := s.estates.Load(ctx, model.EstateID)
	if err != nil {
		return contract.Model{}, err
	}
	if op, ok := owner.Operator(model.OperatorID); ok {
		model.OperatorName = op.Name
	}
	return model, nil
}
