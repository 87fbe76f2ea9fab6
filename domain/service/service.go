// Package service 领域服务：每个业务命令一次 加载 → 校验 → 执行命令 → 保存。
//
// 服务不持有可变状态，可被并发调用；保存时的版本冲突原样返回给调用方，
// 服务内部不重试。跨聚合命令只读取次要聚合做校验，不修改它。
package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"estatemgmt/domain/contract"
	"estatemgmt/domain/estate"
	"estatemgmt/domain/merchant"
)

// IEstateDomainService Estate 命令
type IEstateDomainService interface {
	CreateEstate(ctx context.Context, cmd CreateEstateCommand) (uuid.UUID, error)
	AddOperatorToEstate(ctx context.Context, cmd AddOperatorCommand) (uuid.UUID, error)
	CreateEstateUser(ctx context.Context, cmd CreateEstateUserCommand) (uuid.UUID, error)
	GetEstate(ctx context.Context, estateID uuid.UUID) (estate.Model, error)
}

// IMerchantDomainService Merchant 命令
type IMerchantDomainService interface {
	CreateMerchant(ctx context.Context, cmd CreateMerchantCommand) (uuid.UUID, error)
	AssignOperatorToMerchant(ctx context.Context, cmd AssignOperatorCommand) error
	AddDeviceToMerchant(ctx context.Context, cmd AddDeviceCommand) (uuid.UUID, error)
	MakeMerchantDeposit(ctx context.Context, cmd MakeDepositCommand) (uuid.UUID, error)
	CreateMerchantUser(ctx context.Context, cmd CreateMerchantUserCommand) (uuid.UUID, error)
	GetMerchant(ctx context.Context, merchantID uuid.UUID) (merchant.Model, error)
}

// IContractDomainService Contract 命令
type IContractDomainService interface {
	CreateContract(ctx context.Context, cmd CreateContractCommand) (uuid.UUID, error)
	AddProductToContract(ctx context.Context, cmd AddProductCommand) (uuid.UUID, error)
	AddTransactionFeeForProductToContract(ctx context.Context, cmd AddTransactionFeeCommand) (uuid.UUID, error)
	DisableTransactionFeeForProduct(ctx context.Context, cmd DisableTransactionFeeCommand) error
	GetContract(ctx context.Context, contractID uuid.UUID) (contract.Model, error)
}

// loadPair 并行加载主聚合与只读的次要聚合，任一失败即返回
func loadPair[A, B any](
	ctx context.Context,
	loadPrimary func(ctx context.Context) (A, error),
	loadSecondary func(ctx context.Context) (B, error),
) (A, B, error) {
	var (
		primary   A
		secondary B
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primary, err = loadPrimary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		secondary, err = loadSecondary(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		var zeroA A
		var zeroB B
		return zeroA, zeroB, err
	}
	return primary, secondary, nil
}

var (
	_ IEstateDomainService   = (*EstateDomainService)(nil)
	_ IMerchantDomainService = (*MerchantDomainService)(nil)
	_ IContractDomainService = (*ContractDomainService)(nil)
)
