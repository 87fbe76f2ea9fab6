package estate

import (
	"estatemgmt/domain/eventsourced"
	"estatemgmt/eventing/store"
	"estatemgmt/logging"
)

// NewRepository 基于事件存储创建 Estate 仓储
func NewRepository(es store.IEventStore, logger logging.ILogger) (*eventsourced.Repository[*Estate], error) {
	return eventsourced.NewRepository(eventsourced.RepositoryOptions[*Estate]{
		AggregateType: AggregateType,
		Factory:       New,
		Decoder:       DecodeEvent,
		EventStore:    es,
		Logger:        logger,
	})
}
