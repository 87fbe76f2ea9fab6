package merchant

import "estatemgmt/eventing"

// Upgrades Merchant 事件的模式升级链
//
// MerchantDepositMadeEvent v1 没有 source 字段，读取时按手工入账补齐。
func Upgrades() *eventing.UpgradeChain {
	return eventing.NewUpgradeChain().MustRegister(
		eventing.UpgraderFunc{
			Type: EventMerchantDepositMade,
			From: 1,
			Migrate: func(data map[string]any) (map[string]any, error) {
				if _, ok := data["source"]; !ok {
					data["source"] = int(DepositSourceManual)
				}
				return data, nil
			},
		},
	)
}
