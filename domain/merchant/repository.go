package merchant

import (
	"estatemgmt/domain/eventsourced"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
)

// NewRepository 基于事件存储创建 Merchant 仓储
func NewRepository(es store.IEventStore, logger logging.ILogger) (*eventsourced.Repository[*Merchant], error) {
	return eventsourced.NewRepository(eventsourced.RepositoryOptions[*Merchant]{
		AggregateType: AggregateType,
		Factory:       New,
		Decoder:       DecodeEvent,
		EventStore:    es,
		Logger:        logger,
		Upgrader:      Upgrades(),
	})
}
