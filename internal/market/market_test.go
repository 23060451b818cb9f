package market

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticOraclePriceUpdates(t *testing.T) {
	oracle := NewStaticOracle(map[string]uint64{"ETH": 2000_00000000})
	ctx := context.Background()

	price, err := oracle.Price(ctx, "ETH")
	if err != nil || price != 2000_00000000 {
		t.Fatalf("unexpected price: %d %v", price, err)
	}

	oracle.SetPrice("ETH", 1800_00000000)
	price, _ = oracle.Price(ctx, "ETH")
	if price != 1800_00000000 {
		t.Fatalf("price update lost: %d", price)
	}

	if _, err := oracle.Price(ctx, "DOGE"); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestOracleRouterBothDirections(t *testing.T) {
	oracle := NewStaticOracle(map[string]uint64{"ETH": 2000_00000000})
	router := NewOracleRouter(oracle, "USD")
	ctx := context.Background()

	// 100 USD at 2000 USD/ETH buys 0.05 ETH.
	out, err := router.Swap(ctx, "USD", 100_00000000, "ETH")
	if err != nil {
		t.Fatalf("buy swap: %v", err)
	}
	if out != 5_000_000 {
		t.Fatalf("expected 0.05 ETH, got %d", out)
	}

	// 0.05 ETH sells back into 100 USD.
	out, err = router.Swap(ctx, "ETH", 5_000_000, "USD")
	if err != nil {
		t.Fatalf("sell swap: %v", err)
	}
	if out != 100_00000000 {
		t.Fatalf("expected 100 USD, got %d", out)
	}

	if _, err := router.Swap(ctx, "USD", 0, "ETH"); err == nil {
		t.Fatal("zero amount must be rejected")
	}
}

func TestOracleRouterTruncates(t *testing.T) {
	// 3 units of quote at a price of 7e8 per base: 3e8*1e8/7e8 truncates.
	oracle := NewStaticOracle(map[string]uint64{"ETH": 7_00000000})
	router := NewOracleRouter(oracle, "USD")

	out, err := router.Swap(context.Background(), "USD", 3_00000000, "ETH")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out != 42857142 {
		t.Fatalf("expected truncated 42857142, got %d", out)
	}
}

func TestLoadAssetDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	content := `
quote: USD
router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
assets:
  ETH:
    feed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
    token: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    decimals: 18
    feed_decimals: 8
static_prices:
  ETH: 200000000000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write assets file: %v", err)
	}

	defs, err := LoadAssetDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Quote != "USD" {
		t.Fatalf("unexpected quote: %s", defs.Quote)
	}
	def, ok := defs.Lookup("eth")
	if !ok || def.Decimals != 18 || def.FeedDecimals != 8 {
		t.Fatalf("lookup failed: %+v %v", def, ok)
	}
	if defs.StaticPrices["ETH"] != 2000_00000000 {
		t.Fatalf("static price wrong: %d", defs.StaticPrices["ETH"])
	}

	// An empty path yields usable defaults.
	empty, err := LoadAssetDefinitions("")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if empty.Quote != "USD" || empty.Assets == nil {
		t.Fatalf("unexpected defaults: %+v", empty)
	}
}

func TestRescale(t *testing.T) {
	cases := []struct {
		in       uint64
		from, to uint8
		want     uint64
	}{
		{100, 8, 8, 100},
		{1, 8, 18, 10000000000},
		{123456789, 8, 6, 1234567},
		{5, 0, 8, 500000000},
	}
	for _, tc := range cases {
		got := rescale(new(big.Int).SetUint64(tc.in), tc.from, tc.to)
		if !got.IsUint64() || got.Uint64() != tc.want {
			t.Errorf("rescale(%d, %d, %d) = %s, want %d", tc.in, tc.from, tc.to, got, tc.want)
		}
	}
}
