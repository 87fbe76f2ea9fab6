// Package eventsourced 事件溯源聚合根基类与通用仓储
package eventsourced

import (
	"github.com/google/uuid"

	"estatemgmt/domain"
	"estatemgmt/eventing"
)

// IAggregate 事件溯源聚合根接口。
// 状态完全由事件重建；聚合实例只在一次命令内使用，不做并发保护。
type IAggregate interface {
	domain.IEntity

	// GetAggregateType 返回聚合根类型名称，同时用作事件流名前缀
	GetAggregateType() string

	// ApplyEvent 把事件应用到聚合状态并推进版本。
	// 必须是确定性的纯函数；不属于该聚合的事件是编程错误，直接 panic。
	ApplyEvent(evt domain.IDomainEvent)

	// GetUncommittedEvents 按产生顺序返回未提交事件的副本
	GetUncommittedEvents() []domain.IDomainEvent

	// MarkEventsAsCommitted 由仓储在保存成功后调用
	MarkEventsAsCommitted()
}

// Aggregate 聚合根基类，由具体聚合嵌入。
//
// 具体聚合实现 ApplyEvent：先按事件类型修改状态，再调用 Advance。
// 命令方法通过 Raise 应用并记录新事件：
//
//	func (e *Estate) ApplyEvent(evt domain.IDomainEvent) {
//	    switch ev := evt.(type) {
//	    case EstateCreatedEvent:
//	        e.name = ev.EstateName
//	    default:
//	        panic(eventsourced.UnsupportedEvent(e, evt))
//	    }
//	    e.Advance()
//	}
type Aggregate struct {
	id                uuid.UUID
	aggregateType     string
	version           int64
	uncommittedEvents []domain.IDomainEvent
}

// NewAggregate 创建空聚合，版本为 eventing.NoStream
func NewAggregate(id uuid.UUID, aggregateType string) Aggregate {
	return Aggregate{
		id:            id,
		aggregateType: aggregateType,
		version:       eventing.NoStream,
	}
}

// GetID 实现 IObject 接口。
func (a *Aggregate) GetID() uuid.UUID { return a.id }

// GetVersion 实现 IEntity 接口。
func (a *Aggregate) GetVersion() int64 { return a.version }

// GetAggregateType 返回聚合类型。
func (a *Aggregate) GetAggregateType() string { return a.aggregateType }

// GetUncommittedEvents 实现 IAggregate。
func (a *Aggregate) GetUncommittedEvents() []domain.IDomainEvent {
	events := make([]domain.IDomainEvent, len(a.uncommittedEvents))
	copy(events, a.uncommittedEvents)
	return events
}

// MarkEventsAsCommitted 实现 IAggregate。
func (a *Aggregate) MarkEventsAsCommitted() {
	a.uncommittedEvents = nil
}

// Advance 推进版本，由具体聚合的 ApplyEvent 在状态变更后调用
func (a *Aggregate) Advance() {
	a.version++
}

// Record 记录未提交事件
func (a *Aggregate) Record(evt domain.IDomainEvent) {
	a.uncommittedEvents = append(a.uncommittedEvents, evt)
}

// IRecorder 嵌入了 Aggregate 的具体聚合
type IRecorder interface {
	IAggregate
	Record(evt domain.IDomainEvent)
}

// Raise 应用新事件并记录为未提交，命令方法在校验通过后调用
func Raise(agg IRecorder, evt domain.IDomainEvent) {
	agg.ApplyEvent(evt)
	agg.Record(evt)
}

// UnsupportedEvent 构造 ApplyEvent 遇到未知事件时的 panic 信息
func UnsupportedEvent(agg IAggregate, evt domain.IDomainEvent) string {
	eventType := "<nil>"
	if evt != nil {
		eventType = evt.EventType()
	}
	return "eventsourced: " + agg.GetAggregateType() + " cannot apply event " + eventType
}
