package market

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssetDefinitions 描述 configs/assets.yaml 的结构。
type AssetDefinitions struct {
	// Quote 是计价资产符号，缺省为 USD。
	Quote string `yaml:"quote"`
	// Router 是链上兑换路由合约地址。
	Router string `yaml:"router"`
	Assets map[string]AssetDefinition `yaml:"assets"`
	// StaticPrices 供 static 驱动使用，价格为 1e8 定点数。
	StaticPrices map[string]uint64 `yaml:"static_prices"`
}

// AssetDefinition 描述单个可交易资产。
type AssetDefinition struct {
	// Feed 是价格预言机聚合合约地址。
	Feed string `yaml:"feed"`
	// Token 是资产的 ERC-20 合约地址。
	Token string `yaml:"token"`
	// Decimals 是代币精度。
	Decimals uint8 `yaml:"decimals"`
	// FeedDecimals 是预言机报价精度，Chainlink 常见为 8。
	FeedDecimals uint8 `yaml:"feed_decimals"`
}

// LoadAssetDefinitions 解析资产元数据 YAML 文件。
func LoadAssetDefinitions(path string) (AssetDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return AssetDefinitions{Quote: "USD", Assets: map[string]AssetDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return AssetDefinitions{}, fmt.Errorf("读取资产配置失败: %w", err)
	}

	var defs AssetDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return AssetDefinitions{}, fmt.Errorf("解析资产配置失败: %w", err)
	}
	if defs.Assets == nil {
		defs.Assets = map[string]AssetDefinition{}
	}
	if strings.TrimSpace(defs.Quote) == "" {
		defs.Quote = "USD"
	}
	return defs, nil
}

// Lookup 返回资产定义。
func (d AssetDefinitions) Lookup(symbol string) (AssetDefinition, bool) {
	def, ok := d.Assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return def, ok
}
