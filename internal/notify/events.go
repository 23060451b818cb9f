package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType 标识通知事件的种类。
type EventType string

const (
	EventAgentCreated      EventType = "agent_created"
	EventAgentStateChanged EventType = "agent_state_changed"
	EventAgentDeleted      EventType = "agent_deleted"
	EventStrategyExecuted  EventType = "strategy_executed"
	EventStrategyHalted    EventType = "strategy_halted"
	EventPriceObserved     EventType = "price_observed"
	EventFundsWithdrawn    EventType = "funds_withdrawn"
)

// Event 是发给索引器的事后通知，不参与任何正确性判断。
type Event struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	Creator    string    `json:"creator"`
	AgentID    uint64    `json:"agent_id"`
	OccurredAt int64     `json:"occurred_at"`

	AgentCreated     *AgentCreated     `json:"agent_created,omitempty"`
	StateChanged     *StateChanged     `json:"state_changed,omitempty"`
	AgentDeleted     *AgentDeleted     `json:"agent_deleted,omitempty"`
	StrategyExecuted *StrategyExecuted `json:"strategy_executed,omitempty"`
	StrategyHalted   *StrategyHalted   `json:"strategy_halted,omitempty"`
	PriceObserved    *PriceObserved    `json:"price_observed,omitempty"`
	FundsWithdrawn   *FundsWithdrawn   `json:"funds_withdrawn,omitempty"`
}

// NewEvent 构造带唯一编号与时间戳的事件壳。
func NewEvent(eventType EventType, creator string, agentID uint64) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Creator:    creator,
		AgentID:    agentID,
		OccurredAt: time.Now().Unix(),
	}
}

// AgentCreated 记录一次创建。
type AgentCreated struct {
	StrategyType string `json:"strategy_type"`
	DisplayName  string `json:"display_name"`
	Sponsored    bool   `json:"sponsored"`
}

// StateChanged 记录一次状态迁移。
type StateChanged struct {
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
}

// AgentDeleted 记录一次删除。
type AgentDeleted struct {
	Sponsored bool `json:"sponsored"`
}

// StrategyExecuted 记录一次成功执行。
type StrategyExecuted struct {
	AmountIn       uint64 `json:"amount_in"`
	AmountOut      uint64 `json:"amount_out"`
	ExecutionPrice uint64 `json:"execution_price"`
	ExecutionCount uint64 `json:"execution_count"`
}

// StrategyHalted 记录策略静默停止（停止日期或余额耗尽）。
type StrategyHalted struct {
	Reason string `json:"reason"`
}

// PriceObserved 记录阈值策略的一次价格观测。
type PriceObserved struct {
	OldPrice  uint64 `json:"old_price"`
	NewPrice  uint64 `json:"new_price"`
	PctChange uint64 `json:"pct_change"`
	Triggered bool   `json:"triggered"`
}

// FundsWithdrawn 记录删除时返还的余额与持仓。
type FundsWithdrawn struct {
	QuoteAmount uint64 `json:"quote_amount"`
	BaseAmount  uint64 `json:"base_amount"`
}
