package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"estatemgmt/domain/estate"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/domain/merchant"
	"estatemgmt/errors"
	"estatemgmt/logging"
	"estatemgmt/security"
	"estatemgmt/validation"
)

// MerchantDomainService Merchant 领域服务，Estate 只读
type MerchantDomainService struct {
	merchants eventsourced.IRepository[*merchant.Merchant]
	estates   eventsourced.IRepository[*estate.Estate]
	security  security.IClient
	now       func() time.Time
	logger    logging.ILogger
}

func NewMerchantDomainService(
	merchants eventsourced.IRepository[*merchant.Merchant],
	estates eventsourced.IRepository[*estate.Estate],
	securityClient security.IClient,
	logger logging.ILogger,
) *MerchantDomainService {
	if logger == nil {
		logger = logging.ComponentLogger("service.merchant")
	}
	return &MerchantDomainService{
		merchants: merchants,
		estates:   estates,
		security:  securityClient,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// CreateMerchant 在已存在的 Estate 下创建商户
func (s *MerchantDomainService) CreateMerchant(ctx context.Context, cmd CreateMerchantCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.EstateID, "EstateID"),
		validation.ValidateRequired(cmd.Name, "商户名称"),
	); err != nil {
		return uuid.Nil, err
	}
	merchantID := idOrNew(cmd.MerchantID)

	agg, _, err := loadPair(ctx,
		func(ctx context.Context) (*merchant.Merchant, error) { return s.merchants.LoadOrNew(ctx, merchantID) },
		func(ctx context.Context) (*estate.Estate, error) { return s.estates.Load(ctx, cmd.EstateID) },
	)
	if err != nil {
		return uuid.Nil, err
	}
	if err := agg.Create(cmd.EstateID, cmd.Name, cmd.Address, cmd.Contact, s.now()); err != nil {
		return uuid.Nil, err
	}
	if err := s.merchants.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "merchant created",
		logging.Stringer("estate_id", cmd.EstateID),
		logging.Stringer("merchant_id", merchantID))
	return merchantID, nil
}

// AssignOperatorToMerchant 运营商必须已添加到商户所属的 Estate；
// Estate 要求自定义商户号或终端号时对应字段必填
func (s *MerchantDomainService) AssignOperatorToMerchant(ctx context.Context, cmd AssignOperatorCommand) error {
	if err := validation.ValidateID(cmd.OperatorID, "运营商ID"); err != nil {
		return err
	}
	agg, owner, err := s.loadMerchant(ctx, cmd.EstateID, cmd.MerchantID)
	if err != nil {
		return err
	}

	operator, ok := owner.Operator(cmd.OperatorID)
	if !ok {
		return errors.Validationf("运营商 %s 不存在于 Estate %s", cmd.OperatorID, cmd.EstateID)
	}
	if operator.RequireCustomMerchantNumber {
		if err := validation.ValidateRequired(cmd.MerchantNumber, "商户号"); err != nil {
			return err
		}
	}
	if operator.RequireCustomTerminalNumber {
		if err := validation.ValidateRequired(cmd.TerminalNumber, "终端号"); err != nil {
			return err
		}
	}

	if err := agg.AssignOperator(operator.OperatorID, operator.Name, cmd.MerchantNumber, cmd.TerminalNumber); err != nil {
		return err
	}
	if err := s.merchants.Save(ctx, agg); err != nil {
		return err
	}

	s.logger.Debug(ctx, "operator assigned to merchant",
		logging.Stringer("merchant_id", cmd.MerchantID),
		logging.Stringer("operator_id", cmd.OperatorID))
	return nil
}

// AddDeviceToMerchant 添加设备，返回设备 ID
func (s *MerchantDomainService) AddDeviceToMerchant(ctx context.Context, cmd AddDeviceCommand) (uuid.UUID, error) {
	if err := validation.ValidateRequired(cmd.DeviceIdentifier, "设备标识"); err != nil {
		return uuid.Nil, err
	}
	agg, _, err := s.loadMerchant(ctx, cmd.EstateID, cmd.MerchantID)
	if err != nil {
		return uuid.Nil, err
	}

	deviceID := uuid.New()
	if err := agg.AddDevice(deviceID, cmd.DeviceIdentifier); err != nil {
		return uuid.Nil, err
	}
	if err := s.merchants.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "device added to merchant",
		logging.Stringer("merchant_id", cmd.MerchantID),
		logging.String("device_identifier", cmd.DeviceIdentifier))
	return deviceID, nil
}

// MakeMerchantDeposit 入账，返回入账 ID
func (s *MerchantDomainService) MakeMerchantDeposit(ctx context.Context, cmd MakeDepositCommand) (uuid.UUID, error) {
	if err := validation.ValidatePositiveAmount(cmd.Amount, "入账金额"); err != nil {
		return uuid.Nil, err
	}
	agg, _, err := s.loadMerchant(ctx, cmd.EstateID, cmd.MerchantID)
	if err != nil {
		return uuid.Nil, err
	}

	source := cmd.Source
	if source == merchant.DepositSourceNotSet {
		source = merchant.DepositSourceManual
	}
	at := cmd.DepositDateTime
	if at.IsZero() {
		at = s.now()
	}

	depositID := uuid.New()
	if err := agg.MakeDeposit(depositID, source, cmd.Amount, cmd.Reference, at); err != nil {
		return uuid.Nil, err
	}
	if err := s.merchants.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "merchant deposit made",
		logging.Stringer("merchant_id", cmd.MerchantID),
		logging.Stringer("deposit_id", depositID),
		logging.String("amount", cmd.Amount.String()))
	return depositID, nil
}

// CreateMerchantUser 创建 Merchant 角色用户并关联到商户
func (s *MerchantDomainService) CreateMerchantUser(ctx context.Context, cmd CreateMerchantUserCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateEmail(cmd.EmailAddress),
		validation.ValidatePassword(cmd.Password),
	); err != nil {
		return uuid.Nil, err
	}
	agg, _, err := s.loadMerchant(ctx, cmd.EstateID, cmd.MerchantID)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := s.security.CreateUser(ctx, security.CreateUserRequest{
		EmailAddress: cmd.EmailAddress,
		Password:     cmd.Password,
		GivenName:    cmd.GivenName,
		MiddleName:   cmd.MiddleName,
		FamilyName:   cmd.FamilyName,
		Roles:        []string{security.RoleMerchant},
		Claims: map[string]string{
			security.ClaimEstateID:   cmd.EstateID.String(),
			security.ClaimMerchantID: cmd.MerchantID.String(),
		},
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err := agg.AddSecurityUser(userID, cmd.EmailAddress); err != nil {
		return uuid.Nil, err
	}
	if err := s.merchants.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "merchant user created",
		logging.Stringer("merchant_id", cmd.MerchantID),
		logging.Stringer("user_id", userID))
	return userID, nil
}

// GetMerchant 重放事件流得到商户视图
func (s *MerchantDomainService) GetMerchant(ctx context.Context, merchantID uuid.UUID) (merchant.Model, error) {
	agg, err := s.merchants.Load(ctx, merchantID)
	if err != nil {
		return merchant.Model{}, err
	}
	return agg.Model(), nil
}

// loadMerchant 并行加载商户与其所属 Estate，并校验归属关系
func (s *MerchantDomainService) loadMerchant(ctx context.Context, estateID, merchantID uuid.UUID) (*merchant.Merchant, *estate.Estate, error) {
	if err := validation.First(
		validation.ValidateID(estateID, "EstateID"),
		validation.ValidateID(merchantID, "商户ID"),
	); err != nil {
		return nil, nil, err
	}
	agg, owner, err := loadPair(ctx,
		func(ctx context.Context) (*merchant.Merchant, error) { return s.merchants.Load(ctx, merchantID) },
		func(ctx context.Context) (*estate.Estate, error) { return s.estates.Load(ctx, estateID) },
	)
	if err != nil {
		return nil, nil, err
	}
	if agg.EstateID() != estateID {
		return nil, nil, errors.Validationf("商户 %s 不属于 Estate %s", merchantID, estateID)
	}
	return agg, owner, nil
}
