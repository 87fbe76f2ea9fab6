// Package domain 领域层最小抽象
package domain

import "github.com/google/uuid"

// IObject 最基础的对象接口
type IObject interface {
	// GetID 返回对象的唯一标识
	GetID() uuid.UUID
}

// IEntity 带版本的实体
type IEntity interface {
	IObject

	// GetVersion 返回事件流中最后一条已应用事件的位置，空聚合为 -1
	GetVersion() int64
}

// IDomainEvent 领域事件接口。
// 领域层仅关注事件本身的语义，不关心传输信封与存储细节。
type IDomainEvent interface {
	// EventType 返回领域事件类型标识，持久化后不可更改
	EventType() string
}
