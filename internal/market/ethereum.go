package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// aggregatorABI 是 Chainlink 聚合合约的最小只读接口。
const aggregatorABI = `[{"inputs":[],"name":"latestRoundData","outputs":[
{"internalType":"uint80","name":"roundId","type":"uint80"},
{"internalType":"int256","name":"answer","type":"int256"},
{"internalType":"uint256","name":"startedAt","type":"uint256"},
{"internalType":"uint256","name":"updatedAt","type":"uint256"},
{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
"stateMutability":"view","type":"function"}]`

// routerABI 是 UniswapV2 风格路由的报价接口。
const routerABI = `[{"inputs":[
{"internalType":"uint256","name":"amountIn","type":"uint256"},
{"internalType":"address[]","name":"path","type":"address[]"}],
"name":"getAmountsOut","outputs":[
{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],
"stateMutability":"view","type":"function"}]`

// ChainClient 持有一条 EVM 链的只读连接与资产元数据。
type ChainClient struct {
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	assets    AssetDefinitions
	aggABI    abi.ABI
	routerABI abi.ABI
	router    common.Address
}

// NewChainClient 连接 RPC 节点并解析合约接口。
func NewChainClient(ctx context.Context, rpcURL string, assets AssetDefinitions) (*ChainClient, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	aggregator, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析聚合合约 ABI 失败: %w", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析路由合约 ABI 失败: %w", err)
	}

	return &ChainClient{
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
		assets:    assets,
		aggABI:    aggregator,
		routerABI: router,
		router:    common.HexToAddress(assets.Router),
	}, nil
}

// Close 释放底层连接。
func (c *ChainClient) Close() {
	if c == nil {
		return
	}
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

func (c *ChainClient) call(ctx context.Context, to common.Address, payload []byte) ([]byte, error) {
	msg := gethcore.CallMsg{To: &to, Data: payload}
	return c.eth.CallContract(ctx, msg, nil)
}

// Price 读取预言机的最新报价并换算到内部价格精度。
func (c *ChainClient) Price(ctx context.Context, asset string) (uint64, error) {
	def, ok := c.assets.Lookup(asset)
	if !ok || strings.TrimSpace(def.Feed) == "" {
		return 0, fmt.Errorf("资产 %s 未配置价格预言机", asset)
	}

	payload, err := c.aggABI.Pack("latestRoundData")
	if err != nil {
		return 0, fmt.Errorf("编码预言机调用失败: %w", err)
	}
	raw, err := c.call(ctx, common.HexToAddress(def.Feed), payload)
	if err != nil {
		return 0, fmt.Errorf("查询 %s 价格失败: %w", asset, err)
	}

	values, err := c.aggABI.Unpack("latestRoundData", raw)
	if err != nil || len(values) < 2 {
		return 0, fmt.Errorf("解析 %s 价格返回值失败: %w", asset, err)
	}
	answer, ok := values[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return 0, fmt.Errorf("资产 %s 的预言机报价无效", asset)
	}

	feedDecimals := def.FeedDecimals
	if feedDecimals == 0 {
		feedDecimals = 8
	}
	price := rescale(answer, feedDecimals, priceDecimals)
	if !price.IsUint64() {
		return 0, fmt.Errorf("资产 %s 的报价超出可表示范围", asset)
	}
	return price.Uint64(), nil
}

// Swap 通过路由合约报价接口换算兑换结果。
// 金额在内部精度与代币精度之间往返换算，结算按当前报价瞬时成交。
func (c *ChainClient) Swap(ctx context.Context, assetIn string, amountIn uint64, assetOut string) (uint64, error) {
	if amountIn == 0 {
		return 0, errors.New("兑换金额不能为零")
	}
	defIn, ok := c.assets.Lookup(assetIn)
	if !ok || strings.TrimSpace(defIn.Token) == "" {
		return 0, fmt.Errorf("资产 %s 未配置代币地址", assetIn)
	}
	defOut, ok := c.assets.Lookup(assetOut)
	if !ok || strings.TrimSpace(defOut.Token) == "" {
		return 0, fmt.Errorf("资产 %s 未配置代币地址", assetOut)
	}

	tokenAmount := rescale(new(big.Int).SetUint64(amountIn), priceDecimals, defIn.Decimals)
	path := []common.Address{common.HexToAddress(defIn.Token), common.HexToAddress(defOut.Token)}
	payload, err := c.routerABI.Pack("getAmountsOut", tokenAmount, path)
	if err != nil {
		return 0, fmt.Errorf("编码路由调用失败: %w", err)
	}
	raw, err := c.call(ctx, c.router, payload)
	if err != nil {
		return 0, fmt.Errorf("路由报价失败: %w", err)
	}

	values, err := c.routerABI.Unpack("getAmountsOut", raw)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("解析路由返回值失败: %w", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return 0, errors.New("路由返回值格式异常")
	}

	out := rescale(amounts[len(amounts)-1], defOut.Decimals, priceDecimals)
	if !out.IsUint64() {
		return 0, errors.New("兑换结果超出可表示范围")
	}
	return out.Uint64(), nil
}

// priceDecimals 与 PriceScale 对应。
const priceDecimals uint8 = 8

func rescale(v *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(v)
	if from == to {
		return out
	}
	if to > from {
		return out.Mul(out, pow10(to-from))
	}
	return out.Div(out, pow10(from-to))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

var (
	_ PriceOracle = (*ChainClient)(nil)
	_ SwapRouter  = (*ChainClient)(nil)
)
