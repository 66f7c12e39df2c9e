package amount

import "testing"

func TestDepositRateInceptionOneToOne(t *testing.T) {
	got := DepositRate(T(100*Scale), 0, 0, 0, 0)
	if got != NT(100*Scale) {
		t.Fatalf("expected 1:1 inception mint, got %d", got)
	}
}

func TestDepositRateProportional(t *testing.T) {
	// tracked=1000T, circulating=1000nT (1:1 rate); deposit 100T should mint
	// 100nT, once the bootstrap window has elapsed.
	got := DepositRate(T(100*Scale), NT(1000*Scale), T(1000*Scale), 0, DepositRateBootstrapWindow)
	if got != NT(100*Scale) {
		t.Fatalf("expected 100nT minted, got %d", got)
	}
}

func TestDepositRateAppreciated(t *testing.T) {
	// tracked=1100T backing 1000nT circulating (rate 1.1); depositing 110T
	// should mint floor(110 * 1000 / 1100) = 100nT, past the bootstrap window.
	got := DepositRate(T(110*Scale), NT(1000*Scale), T(1100*Scale), 0, DepositRateBootstrapWindow+1)
	if got != NT(100*Scale) {
		t.Fatalf("expected 100nT minted at appreciated rate, got %d", got)
	}
}

func TestDepositRateWithinBootstrapWindowIsOneToOne(t *testing.T) {
	// Even with an appreciated rate available, a deposit inside the first
	// week since inception still mints 1:1.
	got := DepositRate(T(110*Scale), NT(1000*Scale), T(1100*Scale), 1_000, 1_000+DepositRateBootstrapWindow-1)
	if got != NT(110*Scale) {
		t.Fatalf("expected 1:1 mint inside bootstrap window, got %d", got)
	}
}

func TestWithdrawRateZeroSupply(t *testing.T) {
	got := WithdrawRate(NT(10*Scale), T(0), NT(0))
	if got != 0 {
		t.Fatalf("expected 0 T due against zero supply, got %d", got)
	}
}

func TestGovernanceShareSplit(t *testing.T) {
	share, complement := GovernanceShare(T(10*Scale), 1000) // 10% of 10 T
	if share != T(1*Scale) {
		t.Fatalf("expected 1T governance share, got %d", share)
	}
	if complement != T(9*Scale) {
		t.Fatalf("expected 9T nT-treasury share, got %d", complement)
	}
}

func TestSubTOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on underflow")
		}
	}()
	SubT(1, 2)
}

func TestExchangeRateMonotoneExample(t *testing.T) {
	before := ExchangeRate(T(1000*Scale), NT(1000*Scale))
	after := ExchangeRate(T(1009*Scale), NT(1000*Scale))
	if !(after > before) {
		t.Fatalf("expected exchange rate to increase after reward accrual: before=%v after=%v", before, after)
	}
}
