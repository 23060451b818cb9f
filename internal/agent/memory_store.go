package agent

import (
	"context"
	"sync"

	xerrors "OpenDCA-Chain/internal/errors"
)

// MemoryStore 以内存方式保存智能体与账本，主要用于测试与本地运行。
// 单把互斥锁天然满足每个创建者账户上的串行化要求。
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	agents   map[string]map[uint64]*Agent
	platform PlatformStats
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		agents:   make(map[string]map[uint64]*Agent),
	}
}

// EnsurePlatform 对内存存储是幂等的空操作。
func (m *MemoryStore) EnsurePlatform(_ context.Context) error {
	return nil
}

// CreateAgent 实现 Store 接口。
func (m *MemoryStore) CreateAgent(_ context.Context, ag *Agent) (*Agent, error) {
	if ag == nil || ag.Strategy == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	if ag.Creator == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "创建者不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[ag.Creator]
	if !ok {
		account = NewAccount(ag.Creator)
		m.accounts[ag.Creator] = account
	}
	// 名额检查与占用在同一把锁内完成，并发创建无法都看到 liveCount==9。
	if account.LiveCount+1 > MaxLiveAgentsPerUser {
		return nil, ErrAgentLimitExceeded
	}

	clone := ag.Clone()
	clone.ID = account.NextID
	clone.Sponsored = account.SponsoredCount < MaxSponsoredPerUser
	clone.State = StateActive

	account.NextID++
	account.LiveCount++
	if clone.Sponsored {
		account.SponsoredCount++
	}
	account.OwnedIDs = append(account.OwnedIDs, clone.ID)

	byID, ok := m.agents[ag.Creator]
	if !ok {
		byID = make(map[uint64]*Agent)
		m.agents[ag.Creator] = byID
	}
	byID[clone.ID] = clone

	m.platform.TotalCreated++
	m.platform.TotalLive++

	return clone.Clone(), nil
}

// Get 返回智能体记录。
func (m *MemoryStore) Get(_ context.Context, creator string, id uint64) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ag, ok := m.agents[creator][id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return ag.Clone(), nil
}

// ListByCreator 返回创建者名下未删除的智能体，按创建顺序排列。
func (m *MemoryStore) ListByCreator(_ context.Context, creator string) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[creator]
	if !ok {
		return nil, nil
	}
	result := make([]*Agent, 0, len(account.OwnedIDs))
	for _, id := range account.OwnedIDs {
		ag, ok := m.agents[creator][id]
		if !ok || ag.State == StateDeleted {
			continue
		}
		result = append(result, ag.Clone())
	}
	return result, nil
}

// Transition 实现 Store 接口。
func (m *MemoryStore) Transition(_ context.Context, creator string, id uint64, to State, now int64) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ag, ok := m.agents[creator][id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	switch to {
	case StatePaused:
		if ag.State != StateActive {
			return nil, ErrNotActive
		}
	case StateActive:
		if ag.State != StatePaused {
			return nil, ErrNotPaused
		}
	case StateDeleted:
		if ag.State == StateDeleted {
			return nil, ErrInvalidStateTransition
		}
	default:
		return nil, ErrInvalidStateTransition
	}

	if to == StateDeleted {
		// 任何未删除状态进入 Deleted 都无条件释放存活名额，
		// 赞助名额仅在被删除者享受赞助时释放。
		account := m.accounts[creator]
		if account != nil {
			if account.LiveCount > 0 {
				account.LiveCount--
			}
			if ag.Sponsored && account.SponsoredCount > 0 {
				account.SponsoredCount--
			}
		}
		if m.platform.TotalLive > 0 {
			m.platform.TotalLive--
		}
	}

	ag.State = to
	ag.UpdatedAt = now
	return ag.Clone(), nil
}

// CommitExecution 实现 Store 接口。
func (m *MemoryStore) CommitExecution(_ context.Context, ag *Agent, expectedCount uint64) error {
	if ag == nil || ag.Strategy == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.agents[ag.Creator][ag.ID]
	if !ok {
		return ErrAgentNotFound
	}
	if stored.State == StateDeleted {
		return ErrAgentNotFound
	}
	if stored.Strategy == nil || stored.Strategy.ExecutionCount != expectedCount {
		return xerrors.New(xerrors.CodeConflict, "执行提交与存储状态不一致")
	}

	strategyCopy := *ag.Strategy
	stored.Strategy = &strategyCopy
	stored.TotalTransactions = ag.TotalTransactions
	stored.UpdatedAt = ag.UpdatedAt
	return nil
}

// HaltStrategy 实现 Store 接口。
func (m *MemoryStore) HaltStrategy(_ context.Context, creator string, id uint64, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ag, ok := m.agents[creator][id]
	if !ok {
		return ErrAgentNotFound
	}
	if ag.Strategy == nil {
		return xerrors.New(xerrors.CodeStorageFailure, "智能体缺少策略状态")
	}
	ag.Strategy.Halted = true
	ag.UpdatedAt = now
	return nil
}

// Account 返回账本条目副本。
func (m *MemoryStore) Account(_ context.Context, creator string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[creator]
	if !ok {
		return nil, nil
	}
	return account.Clone(), nil
}

// PlatformStats 返回平台聚合计数。
func (m *MemoryStore) PlatformStats(_ context.Context) (PlatformStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.platform, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
