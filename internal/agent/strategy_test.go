package agent

import (
	"errors"
	"testing"

	xerrors "OpenDCA-Chain/internal/errors"
)

func TestParseKind(t *testing.T) {
	for _, tag := range []string{"interval_buy", "interval_sell", "threshold_buy", "threshold_sell"} {
		if _, err := ParseKind(tag); err != nil {
			t.Fatalf("parse %s: %v", tag, err)
		}
	}
	if _, err := ParseKind("martingale"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestValidateTimingTable(t *testing.T) {
	cases := []struct {
		unit   TimingUnit
		value  uint64
		wantOK bool
	}{
		{UnitMinutes, 15, true},
		{UnitMinutes, 30, true},
		{UnitMinutes, 20, false},
		{UnitMinutes, 45, false},
		{UnitHours, 1, true},
		{UnitHours, 12, true},
		{UnitHours, 0, false},
		{UnitHours, 13, false},
		{UnitWeeks, 1, true},
		{UnitWeeks, 2, true},
		{UnitWeeks, 3, false},
		{UnitMonths, 6, true},
		{UnitMonths, 7, false},
		{TimingUnit("days"), 1, false},
	}
	for _, tc := range cases {
		err := ValidateTiming(tc.unit, tc.value)
		if tc.wantOK && err != nil {
			t.Errorf("%s/%d: unexpected error %v", tc.unit, tc.value, err)
		}
		if !tc.wantOK && xerrors.CodeOf(err) != CodeInvalidTiming {
			t.Errorf("%s/%d: expected timing error, got %v", tc.unit, tc.value, err)
		}
	}
}

func TestUnitSecondsFixedMonth(t *testing.T) {
	secs, ok := UnitSeconds(UnitMonths)
	if !ok || secs != 2592000 {
		t.Fatalf("months must be a fixed 2592000 seconds, got %d %v", secs, ok)
	}
}

func TestSpecValidateThreshold(t *testing.T) {
	base := Spec{
		TypeTag:            string(KindThresholdBuy),
		Asset:              "ETH",
		AmountPerExecution: 100,
		Deposit:            1000,
		ThresholdPercent:   10,
		Trend:              TrendDown,
	}

	if _, err := base.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	low := base
	low.ThresholdPercent = 4
	if _, err := low.Validate(); xerrors.CodeOf(err) != CodeInvalidPercentage {
		t.Fatalf("expected percentage error, got %v", err)
	}

	atMin := base
	atMin.ThresholdPercent = MinThresholdPercent
	if _, err := atMin.Validate(); err != nil {
		t.Fatalf("threshold of exactly 5 must pass: %v", err)
	}

	noTrend := base
	noTrend.Trend = ""
	if _, err := noTrend.Validate(); xerrors.CodeOf(err) != CodeInvalidTrend {
		t.Fatalf("threshold buy requires a trend, got %v", err)
	}

	// Threshold sells do not take a trend.
	sell := base
	sell.TypeTag = string(KindThresholdSell)
	sell.Trend = ""
	if _, err := sell.Validate(); err != nil {
		t.Fatalf("threshold sell without trend must pass: %v", err)
	}
}

func TestSpecValidateDeposit(t *testing.T) {
	spec := Spec{
		TypeTag:            string(KindIntervalBuy),
		Asset:              "ETH",
		AmountPerExecution: 100,
		Deposit:            99,
		TimingUnit:         UnitHours,
		TimingValue:        1,
	}
	if _, err := spec.Validate(); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// A deposit equal to one execution is the minimum viable funding.
	spec.Deposit = 100
	if _, err := spec.Validate(); err != nil {
		t.Fatalf("deposit == amount must pass: %v", err)
	}
}

func TestNewStrategyInitialState(t *testing.T) {
	interval := NewStrategy(Spec{
		TypeTag:            string(KindIntervalBuy),
		Asset:              "ETH",
		AmountPerExecution: 100,
		Deposit:            1000,
		TimingUnit:         UnitHours,
		TimingValue:        2,
		StopAt:             testNow + 86400,
	}, KindIntervalBuy, testNow, 0)
	if interval.LastExecutionAt != testNow {
		t.Fatalf("first interval window anchors at creation, got %d", interval.LastExecutionAt)
	}
	if interval.StopAt != testNow+86400 || interval.RemainingBalance != 1000 {
		t.Fatalf("unexpected interval strategy: %+v", interval)
	}

	buy := NewStrategy(Spec{
		TypeTag:            string(KindThresholdBuy),
		Asset:              "ETH",
		AmountPerExecution: 100,
		Deposit:            1000,
		ThresholdPercent:   10,
		Trend:              TrendDown,
	}, KindThresholdBuy, testNow, 1234)
	if buy.ReferencePrice != 1234 || buy.EntryPrice != 0 {
		t.Fatalf("unexpected threshold buy anchors: %+v", buy)
	}

	sell := NewStrategy(Spec{
		TypeTag:            string(KindThresholdSell),
		Asset:              "ETH",
		AmountPerExecution: 100,
		Deposit:            1000,
		ThresholdPercent:   10,
	}, KindThresholdSell, testNow, 1234)
	if sell.EntryPrice != 1234 || sell.LastObservedPrice != 1234 || sell.ReferencePrice != 0 {
		t.Fatalf("unexpected threshold sell anchors: %+v", sell)
	}
}

func TestValidateDisplayNameCharset(t *testing.T) {
	if err := ValidateDisplayName("Agent 007_x-y"); err != nil {
		t.Fatalf("allowed charset rejected: %v", err)
	}
	for _, bad := range []string{"ab", "naïve bot", "semi;colon", "tab\tname"} {
		if err := ValidateDisplayName(bad); err == nil {
			t.Errorf("expected rejection for %q", bad)
		}
	}
}
