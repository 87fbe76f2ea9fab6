package contract

import (
	"estatemgmt/domain/eventsourced"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
)

// NewRepository 基于事件存储创建 Contract 仓储
func NewRepository(es store.IEventStore, logger logging.ILogger) (*eventsourced.Repository[*Contract], error) {
	return eventsourced.NewRepository(eventsourced.RepositoryOptions[*Contract]{
		AggregateType: AggregateType,
		Factory:       New,
		Decoder:       DecodeEvent,
		EventStore:    es,
		Logger:        logger,
	})
}
