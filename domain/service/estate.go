package service

import (
	"context"

	"github.com/google/uuid"

	"estatemgmt/domain/estate"
	"estatemgmt/domain/eventsourced"
	"estatemgmt/logging"
	"estatemgmt/security"
	"estatemgmt/validation"
)

// EstateDomainService Estate 领域服务
type EstateDomainService struct {
	estates  eventsourced.IRepository[*estate.Estate]
	security security.IClient
	logger   logging.ILogger
}

func NewEstateDomainService(
	estates eventsourced.IRepository[*estate.Estate],
	securityClient security.IClient,
	logger logging.ILogger,
) *EstateDomainService {
	if logger == nil {
		logger = logging.ComponentLogger("service.estate")
	}
	return &EstateDomainService{estates: estates, security: securityClient, logger: logger}
}

// CreateEstate 创建 Estate；指定的 ID 已存在时返回 VALIDATION_ERROR
func (s *EstateDomainService) CreateEstate(ctx context.Context, cmd CreateEstateCommand) (uuid.UUID, error) {
	if err := validation.ValidateRequired(cmd.Name, "Estate名称"); err != nil {
		return uuid.Nil, err
	}
	estateID := idOrNew(cmd.EstateID)

	agg, err := s.estates.LoadOrNew(ctx, estateID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := agg.Create(cmd.Name); err != nil {
		return uuid.Nil, err
	}
	if err := s.estates.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "estate created", logging.Stringer("estate_id", estateID))
	return estateID, nil
}

// AddOperatorToEstate 添加运营商，返回运营商 ID
func (s *EstateDomainService) AddOperatorToEstate(ctx context.Context, cmd AddOperatorCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.EstateID, "EstateID"),
		validation.ValidateRequired(cmd.Name, "运营商名称"),
	); err != nil {
		return uuid.Nil, err
	}
	operatorID := idOrNew(cmd.OperatorID)

	agg, err := s.estates.Load(ctx, cmd.EstateID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := agg.AddOperator(operatorID, cmd.Name, cmd.RequireCustomMerchantNumber, cmd.RequireCustomTerminalNumber); err != nil {
		return uuid.Nil, err
	}
	if err := s.estates.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "operator added to estate",
		logging.Stringer("estate_id", cmd.EstateID),
		logging.Stringer("operator_id", operatorID))
	return operatorID, nil
}

// CreateEstateUser 通过安全服务创建 Estate 角色用户并关联到 Estate。
// 用户先于事件保存创建，保存失败时安全服务中会留下未关联的用户。
func (s *EstateDomainService) CreateEstateUser(ctx context.Context, cmd CreateEstateUserCommand) (uuid.UUID, error) {
	if err := validation.First(
		validation.ValidateID(cmd.EstateID, "EstateID"),
		validation.ValidateEmail(cmd.EmailAddress),
		validation.ValidatePassword(cmd.Password),
	); err != nil {
		return uuid.Nil, err
	}

	agg, err := s.estates.Load(ctx, cmd.EstateID)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := s.security.CreateUser(ctx, security.CreateUserRequest{
		EmailAddress: cmd.EmailAddress,
		Password:     cmd.Password,
		GivenName:    cmd.GivenName,
		MiddleName:   cmd.MiddleName,
		FamilyName:   cmd.FamilyName,
		Roles:        []string{security.RoleEstate},
		Claims:       map[string]string{security.ClaimEstateID: cmd.EstateID.String()},
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err := agg.AddSecurityUser(userID, cmd.EmailAddress); err != nil {
		return uuid.Nil, err
	}
	if err := s.estates.Save(ctx, agg); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug(ctx, "estate user created",
		logging.Stringer("estate_id", cmd.EstateID),
		logging.Stringer("user_id", userID))
	return userID, nil
}

// GetEstate 重放事件流得到 Estate 视图
func (s *EstateDomainService) GetEstate(ctx context.Context, estateID uuid.UUID) (estate.Model, error) {
	agg, err := s.estates.Load(ctx, estateID)
	if err != nil {
		return estate.Model{}, err
	}
	return agg.Model(), nil
}
