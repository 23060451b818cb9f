package agent

import (
	"context"
	"time"

	xerrors "OpenDCA-Chain/internal/errors"
	"OpenDCA-Chain/internal/market"
)

// Clock 返回当前的 Unix 秒，测试中可替换。
type Clock func() int64

// HaltReason 说明策略为什么停止继续执行。
type HaltReason string

const (
	HaltStopDate         HaltReason = "stop_date_reached"
	HaltBalanceExhausted HaltReason = "balance_exhausted"
)

// Observation 记录一次阈值策略的价格观测。
type Observation struct {
	OldPrice  uint64 `json:"old_price"`
	NewPrice  uint64 `json:"new_price"`
	PctChange uint64 `json:"pct_change"`
	Triggered bool   `json:"triggered"`
}

// Outcome 描述一次执行尝试的结果。
// Halted 与 Skipped 都是"成功但未执行"：到达停止日期或余额耗尽
// 不作为错误抛出，只发通知并停掉后续执行。
type Outcome struct {
	Executed       bool
	Halted         bool
	HaltReason     HaltReason
	Skipped        bool
	AmountIn       uint64
	AmountOut      uint64
	ExecutionPrice uint64
	Observation    *Observation
}

// Engine 是四种策略共用的执行引擎：门控判定、外部协作方调用与记账。
type Engine struct {
	oracle     market.PriceOracle
	router     market.SwapRouter
	quoteAsset string
	now        Clock
}

// EngineOption 定义引擎的可选配置。
type EngineOption func(*Engine)

// WithClock 替换引擎时钟。
func WithClock(now Clock) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithQuoteAsset 指定计价资产符号。
func WithQuoteAsset(symbol string) EngineOption {
	return func(e *Engine) {
		if symbol != "" {
			e.quoteAsset = symbol
		}
	}
}

// NewEngine 构造执行引擎。
func NewEngine(oracle market.PriceOracle, router market.SwapRouter, opts ...EngineOption) *Engine {
	e := &Engine{
		oracle:     oracle,
		router:     router,
		quoteAsset: "USD",
		now:        func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Now 返回引擎时钟的当前读数。
func (e *Engine) Now() int64 {
	return e.now()
}

// Run 对传入的智能体副本执行一次策略尝试。
// 成功时直接在副本上完成记账，由调用方负责原子提交；任何门控失败
// 都不触碰副本状态。停止日期与余额耗尽是静默停止而非错误。
func (e *Engine) Run(ctx context.Context, ag *Agent) (Outcome, error) {
	if ag == nil || ag.Strategy == nil {
		return Outcome{}, xerrors.New(xerrors.CodeStorageFailure, "智能体缺少策略状态")
	}
	st := ag.Strategy
	if st.Halted {
		return Outcome{Skipped: true}, nil
	}

	now := e.now()
	if st.StopAt > 0 && now >= st.StopAt {
		st.Halted = true
		ag.UpdatedAt = now
		return Outcome{Halted: true, HaltReason: HaltStopDate}, nil
	}
	if st.RemainingBalance < st.AmountPerExecution {
		st.Halted = true
		ag.UpdatedAt = now
		return Outcome{Halted: true, HaltReason: HaltBalanceExhausted}, nil
	}

	switch st.Kind {
	case KindIntervalBuy, KindIntervalSell:
		if err := e.checkIntervalGate(st, now); err != nil {
			return Outcome{}, err
		}
		return e.executeSwap(ctx, ag, now, nil)
	case KindThresholdBuy:
		return e.runThresholdBuy(ctx, ag, now)
	case KindThresholdSell:
		return e.runThresholdSell(ctx, ag, now)
	default:
		return Outcome{}, ErrUnsupportedType
	}
}

// checkIntervalGate 实现定投门控。
// 买入方向使用 95%-120% 的双侧容忍窗口；卖出方向只检查下限。
// 这一不对称来自原始策略设计，按变体保留而不是统一。
func (e *Engine) checkIntervalGate(st *Strategy, now int64) error {
	unitSecs, ok := UnitSeconds(st.TimingUnit)
	if !ok {
		return xerrors.New(CodeInvalidTiming, "未知的时间单位")
	}
	required := int64(st.TimingValue) * unitSecs
	elapsed := now - st.LastExecutionAt

	if st.Kind == KindIntervalSell {
		if elapsed < required {
			return ErrNotTimeForExecution
		}
		return nil
	}

	lower := required * 95 / 100
	upper := required * 120 / 100
	if elapsed < lower {
		return ErrNotTimeForExecution
	}
	if elapsed > upper {
		return ErrExecutionWindowExceeded
	}
	return nil
}

// runThresholdBuy 实现级联阈值买入：每次触发后参考价重置为触发价。
func (e *Engine) runThresholdBuy(ctx context.Context, ag *Agent, now int64) (Outcome, error) {
	st := ag.Strategy
	current, err := e.fetchPrice(ctx, st.Asset)
	if err != nil {
		return Outcome{}, err
	}

	reference := st.ReferencePrice
	if reference == 0 {
		return Outcome{}, xerrors.New(xerrors.CodeStorageFailure, "阈值买入策略缺少参考价")
	}
	var diff uint64
	if current > reference {
		diff = current - reference
	} else {
		diff = reference - current
	}
	pct := diff * 100 / reference
	obs := &Observation{OldPrice: reference, NewPrice: current, PctChange: pct}

	triggered := pct >= st.ThresholdPercent &&
		((st.Trend == TrendDown && current < reference) ||
			(st.Trend == TrendUp && current > reference))
	if !triggered {
		return Outcome{Observation: obs}, ErrThresholdNotReached
	}

	outcome, err := e.executeSwap(ctx, ag, now, obs)
	if err != nil {
		return outcome, err
	}
	st.ReferencePrice = current
	obs.Triggered = true
	return outcome, nil
}

// runThresholdSell 实现固定入场阈值卖出：入场价创建后不再变化，
// 只要现价相对入场价的涨幅不回落，重复检查会再次触发。
func (e *Engine) runThresholdSell(ctx context.Context, ag *Agent, now int64) (Outcome, error) {
	st := ag.Strategy
	current, err := e.fetchPrice(ctx, st.Asset)
	if err != nil {
		return Outcome{}, err
	}

	entry := st.EntryPrice
	if entry == 0 {
		return Outcome{}, xerrors.New(xerrors.CodeStorageFailure, "阈值卖出策略缺少入场价")
	}
	var gain uint64
	if current > entry {
		gain = (current - entry) * 100 / entry
	}
	obs := &Observation{OldPrice: entry, NewPrice: current, PctChange: gain}

	if gain < st.ThresholdPercent {
		return Outcome{Observation: obs}, ErrThresholdNotReached
	}

	outcome, err := e.executeSwap(ctx, ag, now, obs)
	if err != nil {
		return outcome, err
	}
	st.LastObservedPrice = current
	obs.Triggered = true
	return outcome, nil
}

// executeSwap 调用外部路由完成兑换并在副本上记账。
func (e *Engine) executeSwap(ctx context.Context, ag *Agent, now int64, obs *Observation) (Outcome, error) {
	if e.router == nil {
		return Outcome{}, xerrors.New(xerrors.CodeInitializationFailure, "执行引擎缺少兑换路由")
	}
	st := ag.Strategy
	amount := st.AmountPerExecution

	assetIn, assetOut := e.quoteAsset, st.Asset
	if !st.Kind.IsBuy() {
		assetIn, assetOut = st.Asset, e.quoteAsset
	}
	received, err := e.router.Swap(ctx, assetIn, amount, assetOut)
	if err != nil {
		return Outcome{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "兑换路由执行失败")
	}
	if received == 0 {
		return Outcome{}, xerrors.New(xerrors.CodeCollaboratorFailure, "兑换路由返回零数量")
	}

	st.RemainingBalance -= amount
	var executionPrice uint64
	if st.Kind.IsBuy() {
		st.TotalQuote += amount
		st.TotalBase += received
		executionPrice = amount * PriceScale / received
	} else {
		st.TotalBase += amount
		st.TotalQuote += received
		executionPrice = received * PriceScale / amount
	}
	// 均价始终从累计值重算，保持经济学上的一致性。
	if st.TotalBase > 0 {
		st.AveragePrice = st.TotalQuote * PriceScale / st.TotalBase
	}
	st.ExecutionCount++
	st.LastExecutionAt = now
	ag.TotalTransactions++
	ag.UpdatedAt = now

	return Outcome{
		Executed:       true,
		AmountIn:       amount,
		AmountOut:      received,
		ExecutionPrice: executionPrice,
		Observation:    obs,
	}, nil
}

func (e *Engine) fetchPrice(ctx context.Context, asset string) (uint64, error) {
	if e.oracle == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "执行引擎缺少价格预言机")
	}
	price, err := e.oracle.Price(ctx, asset)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "获取价格失败")
	}
	if price == 0 {
		return 0, xerrors.New(xerrors.CodeCollaboratorFailure, "预言机返回零价格")
	}
	return price, nil
}

// FetchCreationPrice 在创建阈值策略时读取初始参考价/入场价。
func (e *Engine) FetchCreationPrice(ctx context.Context, asset string) (uint64, error) {
	return e.fetchPrice(ctx, asset)
}
