package directory

import (
	"context"
	"fmt"
	"sync"
)

type entry struct {
	Registration
	Active           bool
	TransactionCount uint64
}

// MemoryDirectory 以内存保存目录投影，主要用于测试与本地运行。
type MemoryDirectory struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	byType   map[string]uint64
	byOwner  map[string]uint64
}

// NewMemoryDirectory 创建 MemoryDirectory。
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		entries: make(map[string]*entry),
		byType:  make(map[string]uint64),
		byOwner: make(map[string]uint64),
	}
}

func key(creator string, agentID uint64) string {
	return fmt.Sprintf("%s/%d", creator, agentID)
}

// Register 实现 Directory 接口。
func (d *MemoryDirectory) Register(_ context.Context, reg Registration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key(reg.Creator, reg.AgentID)] = &entry{Registration: reg, Active: true}
	d.byType[reg.StrategyType]++
	d.byOwner[reg.Creator]++
	return nil
}

// SetActive 实现 Directory 接口。
func (d *MemoryDirectory) SetActive(_ context.Context, creator string, agentID uint64, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key(creator, agentID)]; ok {
		e.Active = active
	}
	return nil
}

// SetTransactionCount 实现 Directory 接口。
func (d *MemoryDirectory) SetTransactionCount(_ context.Context, creator string, agentID uint64, count uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key(creator, agentID)]; ok {
		e.TransactionCount = count
	}
	return nil
}

// Remove 实现 Directory 接口。
func (d *MemoryDirectory) Remove(_ context.Context, creator string, agentID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key(creator, agentID)]
	if !ok {
		return nil
	}
	delete(d.entries, key(creator, agentID))
	if d.byType[e.StrategyType] > 0 {
		d.byType[e.StrategyType]--
	}
	if d.byOwner[creator] > 0 {
		d.byOwner[creator]--
	}
	return nil
}

// CountByType 返回某个策略类型的登记数量，仅供测试与仪表盘。
func (d *MemoryDirectory) CountByType(strategyType string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byType[strategyType]
}

// CountByCreator 返回某个创建者的登记数量。
func (d *MemoryDirectory) CountByCreator(creator string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byOwner[creator]
}

// Lookup 返回登记条目是否存在及其活跃标记。
func (d *MemoryDirectory) Lookup(creator string, agentID uint64) (bool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[key(creator, agentID)]
	if !ok {
		return false, false
	}
	return true, e.Active
}

// Close 对内存目录无需操作。
func (d *MemoryDirectory) Close() error { return nil }

var _ Directory = (*MemoryDirectory)(nil)
