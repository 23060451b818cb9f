package agent

import (
	"context"
	"errors"
	"testing"

	"OpenDCA-Chain/internal/market"
)

const (
	testNow   = int64(1_700_000_000)
	ethPrice  = uint64(2000_00000000)
	buyAmount = uint64(100_00000000)
)

func newTestEngine(prices map[string]uint64, now int64) (*Engine, *market.StaticOracle) {
	oracle := market.NewStaticOracle(prices)
	router := market.NewOracleRouter(oracle, "USD")
	engine := NewEngine(oracle, router, WithClock(func() int64 { return now }))
	return engine, oracle
}

func intervalAgent(kind Kind, unit TimingUnit, value uint64, lastExec int64) *Agent {
	return &Agent{
		ID:      1,
		Creator: "alice",
		State:   StateActive,
		Strategy: &Strategy{
			Kind:               kind,
			Asset:              "ETH",
			AmountPerExecution: buyAmount,
			RemainingBalance:   10 * buyAmount,
			TimingUnit:         unit,
			TimingValue:        value,
			LastExecutionAt:    lastExec,
		},
	}
}

func thresholdAgent(kind Kind, threshold uint64, trend Trend, anchor uint64) *Agent {
	st := &Strategy{
		Kind:               kind,
		Asset:              "ETH",
		AmountPerExecution: buyAmount,
		RemainingBalance:   10 * buyAmount,
		ThresholdPercent:   threshold,
	}
	if kind == KindThresholdBuy {
		st.Trend = trend
		st.ReferencePrice = anchor
	} else {
		st.EntryPrice = anchor
		st.LastObservedPrice = anchor
	}
	return &Agent{ID: 2, Creator: "alice", State: StateActive, Strategy: st}
}

func TestIntervalBuyWindow(t *testing.T) {
	// 1 hour interval: lower bound 3420s (95%), upper bound 4320s (120%).
	cases := []struct {
		name    string
		elapsed int64
		wantErr error
	}{
		{"too early", 1800, ErrNotTimeForExecution},
		{"just below lower bound", 3419, ErrNotTimeForExecution},
		{"at lower bound", 3420, nil},
		{"exactly on time", 3600, nil},
		{"at upper bound", 4320, nil},
		{"past upper bound", 4321, ErrExecutionWindowExceeded},
		{"far past window", 4680, ErrExecutionWindowExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)
			ag := intervalAgent(KindIntervalBuy, UnitHours, 1, testNow-tc.elapsed)

			outcome, err := engine.Run(context.Background(), ag)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if ag.Strategy.ExecutionCount != 0 || ag.Strategy.RemainingBalance != 10*buyAmount {
					t.Fatalf("gate failure must not touch strategy state: %+v", ag.Strategy)
				}
				return
			}
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !outcome.Executed {
				t.Fatalf("expected execution, got %+v", outcome)
			}
			if ag.Strategy.LastExecutionAt != testNow {
				t.Fatalf("lastExecutionAt not advanced: %d", ag.Strategy.LastExecutionAt)
			}
		})
	}
}

func TestIntervalSellHasNoUpperBound(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)

	early := intervalAgent(KindIntervalSell, UnitHours, 1, testNow-3599)
	if _, err := engine.Run(context.Background(), early); !errors.Is(err, ErrNotTimeForExecution) {
		t.Fatalf("expected ErrNotTimeForExecution, got %v", err)
	}

	late := intervalAgent(KindIntervalSell, UnitHours, 1, testNow-1_000_000)
	outcome, err := engine.Run(context.Background(), late)
	if err != nil {
		t.Fatalf("run late sell: %v", err)
	}
	if !outcome.Executed {
		t.Fatalf("sell past the interval must execute, got %+v", outcome)
	}
}

func TestStopDateHaltsSilently(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)
	ag := intervalAgent(KindIntervalBuy, UnitHours, 1, testNow-3600)
	ag.Strategy.StopAt = testNow

	outcome, err := engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Halted || outcome.HaltReason != HaltStopDate {
		t.Fatalf("expected stop-date halt, got %+v", outcome)
	}
	if !ag.Strategy.Halted {
		t.Fatal("strategy must be marked halted")
	}
	if ag.Strategy.ExecutionCount != 0 {
		t.Fatal("halt must not execute a swap")
	}

	// Subsequent attempts are silent no-ops.
	again, err := engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run halted: %v", err)
	}
	if !again.Skipped {
		t.Fatalf("expected skip on halted strategy, got %+v", again)
	}
}

func TestBalanceExhaustionHalts(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)
	ag := intervalAgent(KindIntervalBuy, UnitHours, 1, testNow-3600)
	ag.Strategy.RemainingBalance = buyAmount - 1

	outcome, err := engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Halted || outcome.HaltReason != HaltBalanceExhausted {
		t.Fatalf("expected balance halt, got %+v", outcome)
	}
	if ag.Strategy.RemainingBalance != buyAmount-1 {
		t.Fatal("halt must not spend the remaining balance")
	}
}

func TestThresholdBuyCascadingReference(t *testing.T) {
	engine, oracle := newTestEngine(map[string]uint64{"ETH": 100_00000000}, testNow)
	ag := thresholdAgent(KindThresholdBuy, 10, TrendDown, 100_00000000)

	// 5% drop: below the 10% threshold, observation still reported.
	oracle.SetPrice("ETH", 95_00000000)
	outcome, err := engine.Run(context.Background(), ag)
	if !errors.Is(err, ErrThresholdNotReached) {
		t.Fatalf("expected ErrThresholdNotReached, got %v", err)
	}
	if outcome.Observation == nil || outcome.Observation.PctChange != 5 || outcome.Observation.Triggered {
		t.Fatalf("unexpected observation: %+v", outcome.Observation)
	}
	if ag.Strategy.ReferencePrice != 100_00000000 {
		t.Fatal("reference price must not move on a missed threshold")
	}

	// 11% drop: triggers and re-anchors the reference.
	oracle.SetPrice("ETH", 89_00000000)
	outcome, err = engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run triggered buy: %v", err)
	}
	if !outcome.Executed || outcome.Observation == nil || !outcome.Observation.Triggered {
		t.Fatalf("expected triggered execution, got %+v", outcome)
	}
	if ag.Strategy.ReferencePrice != 89_00000000 {
		t.Fatalf("reference must re-anchor to 89e8, got %d", ag.Strategy.ReferencePrice)
	}

	// Same price again: 0% relative to the new anchor, no re-trigger.
	if _, err := engine.Run(context.Background(), ag); !errors.Is(err, ErrThresholdNotReached) {
		t.Fatalf("cascade must require a fresh move, got %v", err)
	}
}

func TestThresholdBuyTrendDirectionMustMatch(t *testing.T) {
	engine, oracle := newTestEngine(map[string]uint64{"ETH": 100_00000000}, testNow)
	ag := thresholdAgent(KindThresholdBuy, 10, TrendDown, 100_00000000)

	// A 15% rise exceeds the threshold but moves against the monitored trend.
	oracle.SetPrice("ETH", 115_00000000)
	if _, err := engine.Run(context.Background(), ag); !errors.Is(err, ErrThresholdNotReached) {
		t.Fatalf("up-move must not trigger a down-trend buy, got %v", err)
	}
}

func TestThresholdSellFixedEntryRetriggers(t *testing.T) {
	engine, oracle := newTestEngine(map[string]uint64{"ETH": 100_00000000}, testNow)
	ag := thresholdAgent(KindThresholdSell, 20, "", 100_00000000)

	// Below entry: gain clamps to zero.
	oracle.SetPrice("ETH", 90_00000000)
	outcome, err := engine.Run(context.Background(), ag)
	if !errors.Is(err, ErrThresholdNotReached) {
		t.Fatalf("expected ErrThresholdNotReached, got %v", err)
	}
	if outcome.Observation == nil || outcome.Observation.PctChange != 0 {
		t.Fatalf("loss must clamp to zero gain: %+v", outcome.Observation)
	}

	// 21% gain: triggers.
	oracle.SetPrice("ETH", 121_00000000)
	outcome, err = engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run triggered sell: %v", err)
	}
	if !outcome.Executed {
		t.Fatalf("expected execution, got %+v", outcome)
	}
	if ag.Strategy.EntryPrice != 100_00000000 {
		t.Fatal("entry price is fixed for the agent's life")
	}
	if ag.Strategy.LastObservedPrice != 121_00000000 {
		t.Fatalf("lastObservedPrice must record the trigger price, got %d", ag.Strategy.LastObservedPrice)
	}

	// Entry never re-anchors, so the same price triggers again.
	outcome, err = engine.Run(context.Background(), ag)
	if err != nil || !outcome.Executed {
		t.Fatalf("fixed entry must re-trigger while the gain holds: %+v %v", outcome, err)
	}
	if ag.Strategy.ExecutionCount != 2 {
		t.Fatalf("expected two executions, got %d", ag.Strategy.ExecutionCount)
	}
}

func TestBuyBookkeeping(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)
	ag := intervalAgent(KindIntervalBuy, UnitHours, 1, testNow-3600)

	outcome, err := engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 100 USD at 2000 USD/ETH buys 0.05 ETH.
	wantBase := uint64(5_000_000)
	if outcome.AmountIn != buyAmount || outcome.AmountOut != wantBase {
		t.Fatalf("unexpected amounts: in=%d out=%d", outcome.AmountIn, outcome.AmountOut)
	}
	if outcome.ExecutionPrice != ethPrice {
		t.Fatalf("unexpected execution price: %d", outcome.ExecutionPrice)
	}

	st := ag.Strategy
	if st.RemainingBalance != 9*buyAmount {
		t.Fatalf("balance not debited: %d", st.RemainingBalance)
	}
	if st.TotalQuote != buyAmount || st.TotalBase != wantBase {
		t.Fatalf("totals wrong: quote=%d base=%d", st.TotalQuote, st.TotalBase)
	}
	if st.AveragePrice != ethPrice {
		t.Fatalf("average price wrong: %d", st.AveragePrice)
	}
	if st.ExecutionCount != 1 || ag.TotalTransactions != 1 {
		t.Fatalf("counters wrong: exec=%d tx=%d", st.ExecutionCount, ag.TotalTransactions)
	}
}

func TestAveragePriceRecomputedFromTotals(t *testing.T) {
	oracle := market.NewStaticOracle(map[string]uint64{"ETH": 2000_00000000})
	router := market.NewOracleRouter(oracle, "USD")
	clockNow := testNow
	engine := NewEngine(oracle, router, WithClock(func() int64 { return clockNow }))

	ag := intervalAgent(KindIntervalBuy, UnitHours, 1, testNow-3600)
	if _, err := engine.Run(context.Background(), ag); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second buy at half the price doubles the base received.
	oracle.SetPrice("ETH", 1000_00000000)
	clockNow += 3600
	if _, err := engine.Run(context.Background(), ag); err != nil {
		t.Fatalf("second run: %v", err)
	}

	st := ag.Strategy
	// 200 USD total for 0.05 + 0.10 ETH: average 1333.33... truncated.
	if st.TotalQuote != 2*buyAmount || st.TotalBase != 15_000_000 {
		t.Fatalf("totals wrong: quote=%d base=%d", st.TotalQuote, st.TotalBase)
	}
	want := st.TotalQuote * PriceScale / st.TotalBase
	if st.AveragePrice != want || st.AveragePrice != 1333_33333333 {
		t.Fatalf("average price wrong: got %d want %d", st.AveragePrice, want)
	}
}

func TestSellBookkeepingMirrorsBuy(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{"ETH": ethPrice}, testNow)
	ag := intervalAgent(KindIntervalSell, UnitHours, 1, testNow-3600)
	// Selling 0.5 ETH per execution.
	ag.Strategy.AmountPerExecution = 50_000_000
	ag.Strategy.RemainingBalance = 500_000_000

	outcome, err := engine.Run(context.Background(), ag)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantQuote := uint64(1000_00000000)
	if outcome.AmountOut != wantQuote {
		t.Fatalf("0.5 ETH at 2000 must yield 1000 USD, got %d", outcome.AmountOut)
	}
	if outcome.ExecutionPrice != ethPrice {
		t.Fatalf("unexpected execution price: %d", outcome.ExecutionPrice)
	}
	st := ag.Strategy
	if st.TotalBase != 50_000_000 || st.TotalQuote != wantQuote {
		t.Fatalf("totals wrong: base=%d quote=%d", st.TotalBase, st.TotalQuote)
	}
	if st.RemainingBalance != 450_000_000 {
		t.Fatalf("base balance not debited: %d", st.RemainingBalance)
	}
}

func TestOracleFailureIsCollaboratorError(t *testing.T) {
	engine, _ := newTestEngine(map[string]uint64{}, testNow)
	ag := thresholdAgent(KindThresholdBuy, 10, TrendDown, 100_00000000)

	_, err := engine.Run(context.Background(), ag)
	if err == nil {
		t.Fatal("expected error for missing price")
	}
	if ag.Strategy.ExecutionCount != 0 {
		t.Fatal("oracle failure must not execute")
	}
}
