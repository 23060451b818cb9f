package agent

import (
	xerrors "OpenDCA-Chain/internal/errors"
)

// State 表示智能体在生命周期中的状态。
type State string

const (
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateDeleted State = "deleted"
)

// IsValidState 检查给定的状态是否为支持的枚举值。
func IsValidState(state State) bool {
	switch state {
	case StateActive, StatePaused, StateDeleted:
		return true
	default:
		return false
	}
}

// Agent 描述一个自动交易智能体。ID 在创建者名下从 1 起连续分配。
type Agent struct {
	ID                uint64    `json:"id"`
	Creator           string    `json:"creator"`
	DisplayName       string    `json:"display_name"`
	State             State     `json:"state"`
	Sponsored         bool      `json:"sponsored"`
	StrategyType      string    `json:"strategy_type"`
	TotalTransactions uint64    `json:"total_transactions"`
	CreatedAt         int64     `json:"created_at"`
	UpdatedAt         int64     `json:"updated_at"`
	Strategy          *Strategy `json:"strategy,omitempty"`
}

// Clone 返回记录的深拷贝，存储层对外只交出副本。
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Strategy != nil {
		strategyCopy := *a.Strategy
		clone.Strategy = &strategyCopy
	}
	return &clone
}

var (
	// ErrAgentNotFound 表示指定的智能体不存在（或已删除）。
	ErrAgentNotFound = xerrors.New(CodeAgentNotFound, "agent not found")
	// ErrNotAuthorized 表示调用者不持有该智能体的创建者凭证。
	ErrNotAuthorized = xerrors.New(CodeNotAuthorized, "caller is not the agent creator")
	// ErrAgentLimitExceeded 表示创建者名下的存活智能体已达上限。
	ErrAgentLimitExceeded = xerrors.New(CodeAgentLimitExceeded, "live agent limit reached")
	// ErrInvalidStateTransition 表示当前状态不允许请求的迁移。
	ErrInvalidStateTransition = xerrors.New(CodeInvalidStateTransition, "invalid state transition")
	// ErrNotActive 表示操作要求智能体处于运行状态。
	ErrNotActive = xerrors.New(CodeNotActive, "agent is not active")
	// ErrNotPaused 表示操作要求智能体处于暂停状态。
	ErrNotPaused = xerrors.New(CodeNotPaused, "agent is not paused")
	// ErrUnsupportedType 表示策略类型标签不在支持范围内。
	ErrUnsupportedType = xerrors.New(CodeUnsupportedType, "unsupported strategy type")
	// ErrInsufficientBalance 表示入金不足以完成首次执行。
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "deposit below first execution amount")
	// ErrNotTimeForExecution 表示距离上次执行还未到允许窗口。
	ErrNotTimeForExecution = xerrors.New(CodeNotTimeForExecution, "interval lower bound not reached")
	// ErrExecutionWindowExceeded 表示本次执行已错过容忍窗口上限。
	ErrExecutionWindowExceeded = xerrors.New(CodeExecutionWindowExceeded, "interval upper bound exceeded")
	// ErrThresholdNotReached 表示价格变动未达到触发阈值。
	ErrThresholdNotReached = xerrors.New(CodeThresholdNotReached, "price threshold not reached")
)

const (
	CodeAgentNotFound           xerrors.Code = "AGENT_NOT_FOUND"
	CodeNotAuthorized           xerrors.Code = "NOT_AUTHORIZED"
	CodeAgentLimitExceeded      xerrors.Code = "AGENT_LIMIT_EXCEEDED"
	CodeInvalidStateTransition  xerrors.Code = "INVALID_STATE_TRANSITION"
	CodeNotActive               xerrors.Code = "NOT_ACTIVE"
	CodeNotPaused               xerrors.Code = "NOT_PAUSED"
	CodeInvalidInput            xerrors.Code = "INVALID_INPUT"
	CodeInvalidTiming           xerrors.Code = "INVALID_TIMING"
	CodeInvalidPercentage       xerrors.Code = "INVALID_PERCENTAGE"
	CodeInvalidTrend            xerrors.Code = "INVALID_TREND"
	CodeUnsupportedType         xerrors.Code = "UNSUPPORTED_TYPE"
	CodeInsufficientBalance     xerrors.Code = "INSUFFICIENT_BALANCE"
	CodeNotTimeForExecution     xerrors.Code = "NOT_TIME_FOR_EXECUTION"
	CodeExecutionWindowExceeded xerrors.Code = "EXECUTION_WINDOW_EXCEEDED"
	CodeThresholdNotReached     xerrors.Code = "THRESHOLD_NOT_REACHED"
)

func init() {
	xerrors.Register(CodeAgentNotFound, xerrors.Attributes{
		Message:  "agent not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNotAuthorized, xerrors.Attributes{
		Message:  "caller is not the agent creator",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeAgentLimitExceeded, xerrors.Attributes{
		Message:  "live agent limit reached",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidStateTransition, xerrors.Attributes{
		Message:  "invalid state transition",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNotActive, xerrors.Attributes{
		Message:  "agent is not active",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNotPaused, xerrors.Attributes{
		Message:  "agent is not paused",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidInput, xerrors.Attributes{
		Message:  "name or parameter out of bounds",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidTiming, xerrors.Attributes{
		Message:  "timing unit/value combination not allowed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidPercentage, xerrors.Attributes{
		Message:  "threshold percentage below minimum",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidTrend, xerrors.Attributes{
		Message:  "trend must be up or down",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeUnsupportedType, xerrors.Attributes{
		Message:  "unsupported strategy type",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:  "deposit below first execution amount",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNotTimeForExecution, xerrors.Attributes{
		Message:  "interval lower bound not reached",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeExecutionWindowExceeded, xerrors.Attributes{
		Message:  "interval upper bound exceeded",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeThresholdNotReached, xerrors.Attributes{
		Message:  "price threshold not reached",
		Severity: xerrors.SeverityInfo,
	})
}

const (
	// DisplayNameMinLen 和 DisplayNameMaxLen 约束展示名称的字节长度。
	DisplayNameMinLen = 3
	DisplayNameMaxLen = 64
	// StrategyTypeMaxLen 约束策略类型标签的字节长度。
	StrategyTypeMaxLen = 32
)

// ValidateDisplayName 校验展示名称：3-64 字节，仅允许字母、数字、空格、连字符与下划线。
func ValidateDisplayName(name string) error {
	if len(name) < DisplayNameMinLen || len(name) > DisplayNameMaxLen {
		return xerrors.New(CodeInvalidInput, "展示名称长度必须在 3-64 字节之间")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ' ' || c == '-' || c == '_':
		default:
			return xerrors.New(CodeInvalidInput, "展示名称包含不允许的字符")
		}
	}
	return nil
}

// ValidateStrategyTypeTag 校验策略类型标签：1-32 字节，非空。
func ValidateStrategyTypeTag(tag string) error {
	if len(tag) == 0 || len(tag) > StrategyTypeMaxLen {
		return xerrors.New(CodeInvalidInput, "策略类型标签长度必须在 1-32 字节之间")
	}
	return nil
}
