package agent

import (
	xerrors "OpenDCA-Chain/internal/errors"
)

// Kind 表示策略引擎的四种变体。
type Kind string

const (
	KindIntervalBuy   Kind = "interval_buy"
	KindIntervalSell  Kind = "interval_sell"
	KindThresholdBuy  Kind = "threshold_buy"
	KindThresholdSell Kind = "threshold_sell"
)

// ParseKind 将策略类型标签解析为引擎变体。
func ParseKind(tag string) (Kind, error) {
	switch Kind(tag) {
	case KindIntervalBuy, KindIntervalSell, KindThresholdBuy, KindThresholdSell:
		return Kind(tag), nil
	default:
		return "", ErrUnsupportedType
	}
}

// IsInterval 判断是否为定投类策略。
func (k Kind) IsInterval() bool {
	return k == KindIntervalBuy || k == KindIntervalSell
}

// IsBuy 判断策略方向。
func (k Kind) IsBuy() bool {
	return k == KindIntervalBuy || k == KindThresholdBuy
}

// Trend 表示阈值买入策略监控的价格方向。
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// TimingUnit 表示定投间隔的时间单位。
type TimingUnit string

const (
	UnitMinutes TimingUnit = "minutes"
	UnitHours   TimingUnit = "hours"
	UnitWeeks   TimingUnit = "weeks"
	UnitMonths  TimingUnit = "months"
)

// 单位对应的秒数。一个月固定按 2,592,000 秒计。
const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerWeek   = 604800
	secondsPerMonth  = 2592000
)

// PriceScale 是定点价格的比例因子。
const PriceScale = 100000000

// UnitSeconds 返回时间单位对应的秒数。
func UnitSeconds(unit TimingUnit) (int64, bool) {
	switch unit {
	case UnitMinutes:
		return secondsPerMinute, true
	case UnitHours:
		return secondsPerHour, true
	case UnitWeeks:
		return secondsPerWeek, true
	case UnitMonths:
		return secondsPerMonth, true
	default:
		return 0, false
	}
}

// ValidateTiming 按校验表检查时间单位与取值的组合。
// minutes 仅允许 15 或 30，hours 1..12，weeks 1..2，months 1..6。
func ValidateTiming(unit TimingUnit, value uint64) error {
	switch unit {
	case UnitMinutes:
		if value != 15 && value != 30 {
			return xerrors.New(CodeInvalidTiming, "分钟级间隔仅允许 15 或 30")
		}
	case UnitHours:
		if value < 1 || value > 12 {
			return xerrors.New(CodeInvalidTiming, "小时级间隔必须在 1-12 之间")
		}
	case UnitWeeks:
		if value < 1 || value > 2 {
			return xerrors.New(CodeInvalidTiming, "周级间隔必须在 1-2 之间")
		}
	case UnitMonths:
		if value < 1 || value > 6 {
			return xerrors.New(CodeInvalidTiming, "月级间隔必须在 1-6 之间")
		}
	default:
		return xerrors.New(CodeInvalidTiming, "未知的时间单位")
	}
	return nil
}

// MinThresholdPercent 是阈值策略允许的最小触发百分比。
const MinThresholdPercent = 5

// Strategy 保存一个智能体的策略配置与运行累计。
// 定点价格统一采用 1e8 比例。
type Strategy struct {
	Kind               Kind       `json:"kind"`
	Asset              string     `json:"asset"`
	AmountPerExecution uint64     `json:"amount_per_execution"`
	RemainingBalance   uint64     `json:"remaining_balance"`
	TimingUnit         TimingUnit `json:"timing_unit,omitempty"`
	TimingValue        uint64     `json:"timing_value,omitempty"`
	LastExecutionAt    int64      `json:"last_execution_at,omitempty"`
	StopAt             int64      `json:"stop_at,omitempty"`
	ThresholdPercent   uint64     `json:"threshold_percent,omitempty"`
	Trend              Trend      `json:"trend,omitempty"`
	ReferencePrice     uint64     `json:"reference_price,omitempty"`
	EntryPrice         uint64     `json:"entry_price,omitempty"`
	LastObservedPrice  uint64     `json:"last_observed_price,omitempty"`
	TotalBase          uint64     `json:"total_base"`
	TotalQuote         uint64     `json:"total_quote"`
	AveragePrice       uint64     `json:"average_price"`
	ExecutionCount     uint64     `json:"execution_count"`
	Halted             bool       `json:"halted"`
}

// Spec 是创建智能体时提交的策略参数。
type Spec struct {
	TypeTag            string     `json:"type"`
	Asset              string     `json:"asset"`
	AmountPerExecution uint64     `json:"amount_per_execution"`
	Deposit            uint64     `json:"deposit"`
	TimingUnit         TimingUnit `json:"timing_unit,omitempty"`
	TimingValue        uint64     `json:"timing_value,omitempty"`
	StopAt             int64      `json:"stop_at,omitempty"`
	ThresholdPercent   uint64     `json:"threshold_percent,omitempty"`
	Trend              Trend      `json:"trend,omitempty"`
}

// Validate 校验策略参数并返回解析后的变体。
// 校验顺序与账本无关，任何失败都不触碰账本状态。
func (s Spec) Validate() (Kind, error) {
	if err := ValidateStrategyTypeTag(s.TypeTag); err != nil {
		return "", err
	}
	kind, err := ParseKind(s.TypeTag)
	if err != nil {
		return "", err
	}
	if s.Asset == "" {
		return "", xerrors.New(CodeInvalidInput, "标的资产不能为空")
	}
	if s.AmountPerExecution == 0 {
		return "", xerrors.New(CodeInvalidInput, "单次执行金额必须大于 0")
	}
	if s.Deposit < s.AmountPerExecution {
		return "", ErrInsufficientBalance
	}
	if kind.IsInterval() {
		if err := ValidateTiming(s.TimingUnit, s.TimingValue); err != nil {
			return "", err
		}
	} else {
		if s.ThresholdPercent < MinThresholdPercent {
			return "", xerrors.New(CodeInvalidPercentage, "触发百分比不能低于 5")
		}
		if kind == KindThresholdBuy {
			if s.Trend != TrendUp && s.Trend != TrendDown {
				return "", xerrors.New(CodeInvalidTrend, "趋势必须为 up 或 down")
			}
		}
	}
	return kind, nil
}

// NewStrategy 按照策略参数构造初始运行状态。
// 定投策略把 lastExecutionAt 初始化为创建时刻，使首次执行恰好在一个
// 完整间隔之后到期；阈值策略以创建时刻的现价作为初始参考价/入场价。
func NewStrategy(spec Spec, kind Kind, createdAt int64, creationPrice uint64) *Strategy {
	strategy := &Strategy{
		Kind:               kind,
		Asset:              spec.Asset,
		AmountPerExecution: spec.AmountPerExecution,
		RemainingBalance:   spec.Deposit,
	}
	if kind.IsInterval() {
		strategy.TimingUnit = spec.TimingUnit
		strategy.TimingValue = spec.TimingValue
		strategy.LastExecutionAt = createdAt
		strategy.StopAt = spec.StopAt
		return strategy
	}
	strategy.ThresholdPercent = spec.ThresholdPercent
	if kind == KindThresholdBuy {
		strategy.Trend = spec.Trend
		strategy.ReferencePrice = creationPrice
	} else {
		strategy.EntryPrice = creationPrice
		strategy.LastObservedPrice = creationPrice
	}
	return strategy
}
