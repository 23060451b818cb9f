package agent

import (
	"context"
)

// Store 抽象智能体与账本的持久化。
// 每个写操作都是一次原子事务：创建/删除以创建者账本为锁定粒度，
// 执行提交以单个智能体为锁定粒度，不存在部分提交的中间态。
type Store interface {
	// EnsurePlatform 幂等地初始化平台账本，重复调用不改变聚合状态。
	EnsurePlatform(ctx context.Context) error

	// CreateAgent 在一个原子步骤内完成名额检查、编号分配与赞助判定，
	// 并同步推进平台账本。入参的 ID 与 Sponsored 字段由存储层填写。
	// 名额耗尽返回 ErrAgentLimitExceeded。
	CreateAgent(ctx context.Context, ag *Agent) (*Agent, error)

	// Get 返回指定智能体（含已删除记录），不存在返回 ErrAgentNotFound。
	Get(ctx context.Context, creator string, id uint64) (*Agent, error)

	// ListByCreator 按创建顺序返回创建者名下所有未删除的智能体。
	ListByCreator(ctx context.Context, creator string) ([]*Agent, error)

	// Transition 执行一次状态迁移并更新 updatedAt。
	// 迁移到 Paused 要求当前 Active（否则 ErrNotActive），
	// 迁移到 Active 要求当前 Paused（否则 ErrNotPaused），
	// 迁移到 Deleted 要求当前未删除（否则 ErrInvalidStateTransition），
	// 删除同时在创建者账本与平台账本上释放名额。
	Transition(ctx context.Context, creator string, id uint64, to State, now int64) (*Agent, error)

	// CommitExecution 原子提交一次执行的全部记账结果。
	// expectedCount 是提交前的 executionCount，用于并发下的乐观校验；
	// 不匹配返回 CONFLICT，保证同一窗口内至多一次成功执行。
	CommitExecution(ctx context.Context, ag *Agent, expectedCount uint64) error

	// HaltStrategy 把策略标记为已停止（停止日期到达或余额耗尽）。
	HaltStrategy(ctx context.Context, creator string, id uint64, now int64) error

	// Account 返回创建者的账本条目，没有任何记录时返回 nil。
	Account(ctx context.Context, creator string) (*Account, error)

	// PlatformStats 返回平台聚合计数。
	PlatformStats(ctx context.Context) (PlatformStats, error)

	Close() error
}
