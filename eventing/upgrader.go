package eventing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// IEventUpgrader 把某一事件类型的载荷从 FromVersion 升级到 FromVersion+1
type IEventUpgrader interface {
	EventType() string
	FromVersion() int
	Upgrade(data map[string]any) (map[string]any, error)
}

// UpgraderFunc 函数式升级器
type UpgraderFunc struct {
	Type    string
	From    int
	Migrate func(data map[string]any) (map[string]any, error)
}

func (u UpgraderFunc) EventType() string { return u.Type }
func (u UpgraderFunc) FromVersion() int  { return u.From }

func (u UpgraderFunc) Upgrade(data map[string]any) (map[string]any, error) {
	return u.Migrate(data)
}

// UpgradeChain 按事件类型组织的模式升级链
//
// 事件类型的目标版本为已注册升级器的最高 FromVersion+1，没有升级器时为 1。
// 读取旧版本事件时依次执行升级器，写入新事件时使用目标版本。
type UpgradeChain struct {
	mu        sync.RWMutex
	upgraders map[string]map[int]IEventUpgrader
	targets   map[string]int
}

func NewUpgradeChain() *UpgradeChain {
	return &UpgradeChain{
		upgraders: make(map[string]map[int]IEventUpgrader),
		targets:   make(map[string]int),
	}
}

// Register 注册升级器；同一类型同一起始版本只能注册一次
func (c *UpgradeChain) Register(u IEventUpgrader) error {
	if u == nil {
		return fmt.Errorf("event upgrader cannot be nil")
	}
	eventType := u.EventType()
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if u.FromVersion() <= 0 {
		return fmt.Errorf("event upgrader from-version must be greater than 0 for type %s", eventType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byVersion := c.upgraders[eventType]
	if byVersion == nil {
		byVersion = make(map[int]IEventUpgrader)
		c.upgraders[eventType] = byVersion
	}
	if _, exists := byVersion[u.FromVersion()]; exists {
		return fmt.Errorf("event upgrader for type %s from version %d already registered", eventType, u.FromVersion())
	}
	byVersion[u.FromVersion()] = u
	if to := u.FromVersion() + 1; to > c.targets[eventType] {
		c.targets[eventType] = to
	}
	return nil
}

// MustRegister 注册失败时 panic
func (c *UpgradeChain) MustRegister(upgraders ...IEventUpgrader) *UpgradeChain {
	for _, u := range upgraders {
		if err := c.Register(u); err != nil {
			panic(err)
		}
	}
	return c
}

// TargetVersion 事件类型当前的模式版本
func (c *UpgradeChain) TargetVersion(eventType string) int {
	if c == nil {
		return 1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v := c.targets[eventType]; v > 0 {
		return v
	}
	return 1
}

// Upgrade 把 JSON 载荷从 version 升级到目标版本，返回新载荷与最终版本
func (c *UpgradeChain) Upgrade(eventType string, version int, payload []byte) ([]byte, int, error) {
	if version <= 0 {
		version = 1
	}
	target := c.TargetVersion(eventType)
	if version >= target {
		return payload, version, nil
	}

	data := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, version, fmt.Errorf("decode %s payload for upgrade: %w", eventType, err)
	}

	c.mu.RLock()
	byVersion := c.upgraders[eventType]
	c.mu.RUnlock()

	for version < target {
		u, ok := byVersion[version]
		if !ok {
			return nil, version, fmt.Errorf("cannot upgrade event %s from version %d to %d: missing upgrader", eventType, version, target)
		}
		upgraded, err := u.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("upgrade event %s from version %d failed: %w", eventType, version, err)
		}
		data = upgraded
		version++
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, version, fmt.Errorf("encode upgraded %s payload: %w", eventType, err)
	}
	return out, version, nil
}
