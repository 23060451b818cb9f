package directory

import (
	"context"
)

// Registration 是注册到目录的智能体摘要。
type Registration struct {
	Creator      string `json:"creator"`
	AgentID      uint64 `json:"agent_id"`
	StrategyType string `json:"strategy_type"`
	DisplayName  string `json:"display_name"`
}

// Directory 是面向索引器的读侧投影：核心在创建与生命周期事件时
// 写入，但从不回读它来做正确性判断。
type Directory interface {
	Register(ctx context.Context, reg Registration) error
	SetActive(ctx context.Context, creator string, agentID uint64, active bool) error
	SetTransactionCount(ctx context.Context, creator string, agentID uint64, count uint64) error
	Remove(ctx context.Context, creator string, agentID uint64) error
	Close() error
}
