package market

import (
	"context"
	"sync"

	xerrors "OpenDCA-Chain/internal/errors"
)

// PriceScale 是定点价格的比例因子（1e8）。
const PriceScale = 100000000

// PriceOracle 返回某个资产的定点价格（1e8 比例）。
// 核心逻辑只依赖返回值的一致性，不关心预言机内部实现。
type PriceOracle interface {
	Price(ctx context.Context, asset string) (uint64, error)
}

// SwapRouter 执行一次兑换并报告实际到手数量。
type SwapRouter interface {
	Swap(ctx context.Context, assetIn string, amountIn uint64, assetOut string) (uint64, error)
}

// StaticOracle 以内存表保存价格，主要用于测试与本地运行。
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]uint64
}

// NewStaticOracle 创建一个静态预言机。
func NewStaticOracle(prices map[string]uint64) *StaticOracle {
	table := make(map[string]uint64, len(prices))
	for asset, price := range prices {
		table[asset] = price
	}
	return &StaticOracle{prices: table}
}

// SetPrice 更新某个资产的报价。
func (o *StaticOracle) SetPrice(asset string, price uint64) {
	o.mu.Lock()
	o.prices[asset] = price
	o.mu.Unlock()
}

// Price 实现 PriceOracle 接口。
func (o *StaticOracle) Price(_ context.Context, asset string) (uint64, error) {
	o.mu.RLock()
	price, ok := o.prices[asset]
	o.mu.RUnlock()
	if !ok {
		return 0, xerrors.New(xerrors.CodeCollaboratorFailure, "预言机没有该资产的报价",
			xerrors.WithMetadata("asset", asset))
	}
	return price, nil
}

// OracleRouter 按预言机现价完成兑换，是真实路由的替身实现。
// 买入方向（报价资产换标的资产）按 amountIn×1e8/price 计算，
// 卖出方向按 amountIn×price/1e8 计算，均为截断整数运算。
type OracleRouter struct {
	oracle PriceOracle
	quote  string
}

// NewOracleRouter 创建基于预言机报价的路由。quote 是计价资产符号。
func NewOracleRouter(oracle PriceOracle, quote string) *OracleRouter {
	if quote == "" {
		quote = "USD"
	}
	return &OracleRouter{oracle: oracle, quote: quote}
}

// Swap 实现 SwapRouter 接口。
func (r *OracleRouter) Swap(ctx context.Context, assetIn string, amountIn uint64, assetOut string) (uint64, error) {
	if r.oracle == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "路由缺少预言机")
	}
	if amountIn == 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "兑换数量必须大于 0")
	}
	if assetIn == r.quote {
		price, err := r.oracle.Price(ctx, assetOut)
		if err != nil {
			return 0, err
		}
		if price == 0 {
			return 0, xerrors.New(xerrors.CodeCollaboratorFailure, "预言机返回零价格")
		}
		return amountIn * PriceScale / price, nil
	}
	price, err := r.oracle.Price(ctx, assetIn)
	if err != nil {
		return 0, err
	}
	return amountIn * price / PriceScale, nil
}

var (
	_ PriceOracle = (*StaticOracle)(nil)
	_ SwapRouter  = (*OracleRouter)(nil)
)
