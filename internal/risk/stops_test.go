package risk

import (
	"math"
	"testing"
)

func TestForType_UnknownType(t *testing.T) {
	if _, err := ForType("chandelier", 0.05, 0.1); err == nil {
		t.Fatalf("expected error for unknown stop type")
	}
}

func TestFixedRule_BothDirections(t *testing.T) {
	rule := FixedRule{Fraction: 0.05}

	long := rule.Price(Input{EntryPrice: 10, Direction: 1})
	if diff := math.Abs(long - 9.5); diff > 1e-9 {
		t.Errorf("expected long stop 9.5, got %f", long)
	}

	short := rule.Price(Input{EntryPrice: 10, Direction: -1})
	if diff := math.Abs(short - 10.5); diff > 1e-9 {
		t.Errorf("expected short stop 10.5, got %f", short)
	}
}

func TestTrailingRule_TracksWatermark(t *testing.T) {
	rule := TrailingRule{Fraction: 0.1, Fallback: FixedRule{Fraction: 0.05}}

	long := rule.Price(Input{EntryPrice: 10, Direction: 1, Watermark: 12})
	if diff := math.Abs(long - 10.8); diff > 1e-9 {
		t.Errorf("expected trailing stop 10.8, got %f", long)
	}

	short := rule.Price(Input{EntryPrice: 10, Direction: -1, Watermark: 8})
	if diff := math.Abs(short - 8.8); diff > 1e-9 {
		t.Errorf("expected short trailing stop 8.8, got %f", short)
	}
}

func TestTrailingRule_ZeroFractionFallsBackToFixed(t *testing.T) {
	rule := TrailingRule{Fraction: 0, Fallback: FixedRule{Fraction: 0.05}}
	got := rule.Price(Input{EntryPrice: 10, Direction: 1, Watermark: 12})
	if diff := math.Abs(got - 9.5); diff > 1e-9 {
		t.Errorf("expected fixed fallback 9.5, got %f", got)
	}
}

func TestATRRule_UsesDoubleATRDistance(t *testing.T) {
	rule := ATRRule{}

	long := rule.Price(Input{EntryPrice: 10, Direction: 1, ATR: 0.5})
	if diff := math.Abs(long - 9); diff > 1e-9 {
		t.Errorf("expected long ATR stop 9, got %f", long)
	}

	short := rule.Price(Input{EntryPrice: 10, Direction: -1, ATR: 0.5})
	if diff := math.Abs(short - 11); diff > 1e-9 {
		t.Errorf("expected short ATR stop 11, got %f", short)
	}
}

func TestCompositeRule_TakesMostProtectiveStop(t *testing.T) {
	rule, err := ForType(StopComposite, 0.05, 0.1)
	if err != nil {
		t.Fatalf("ForType returned error: %v", err)
	}

	// 多头: fixed=9.5 trailing=10.8 atr=9 -> 最高10.8
	long := rule.Price(Input{EntryPrice: 10, Direction: 1, Watermark: 12, ATR: 0.5})
	if diff := math.Abs(long - 10.8); diff > 1e-9 {
		t.Errorf("expected composite long stop 10.8, got %f", long)
	}

	// 空头: fixed=10.5 trailing=8.8 atr=11 -> 最低8.8
	short := rule.Price(Input{EntryPrice: 10, Direction: -1, Watermark: 8, ATR: 0.5})
	if diff := math.Abs(short - 8.8); diff > 1e-9 {
		t.Errorf("expected composite short stop 8.8, got %f", short)
	}
}

func TestCompositeRule_IgnoresATRWhenUnavailable(t *testing.T) {
	rule, err := ForType(StopComposite, 0.05, 0)
	if err != nil {
		t.Fatalf("ForType returned error: %v", err)
	}

	// ATR为0时ATR分量退出合成，否则多头止损会钉在开仓价
	got := rule.Price(Input{EntryPrice: 10, Direction: 1, Watermark: 10, ATR: 0})
	if diff := math.Abs(got - 9.5); diff > 1e-9 {
		t.Errorf("expected 9.5 without ATR component, got %f", got)
	}
}

func TestTriggered(t *testing.T) {
	if !Triggered(1, 9.5, 10, 9.4) {
		t.Errorf("long stop should trigger when low reaches stop")
	}
	if Triggered(1, 9.5, 10, 9.6) {
		t.Errorf("long stop should not trigger above stop")
	}
	if !Triggered(-1, 10.5, 10.6, 10) {
		t.Errorf("short stop should trigger when high reaches stop")
	}
	if Triggered(-1, 10.5, 10.4, 10) {
		t.Errorf("short stop should not trigger below stop")
	}
}
