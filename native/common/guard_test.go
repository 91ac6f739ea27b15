package common

import (
	"errors"
	"math/big"
	"testing"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "loans"); err != nil {
		t.Fatalf("nil pause view should not block: %v", err)
	}
	pauses := pauseSet{"loans": true}
	if err := Guard(pauses, "loans"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "escrow"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
}

func TestMulBps(t *testing.T) {
	if got := MulBps(big.NewInt(10_000), 25); got.Int64() != 25 {
		t.Fatalf("expected 25, got %s", got)
	}
	if got := MulBps(big.NewInt(399), 25); got.Sign() != 0 {
		t.Fatalf("expected rounding down to 0, got %s", got)
	}
	if got := MulBps(nil, 100); got.Sign() != 0 {
		t.Fatalf("expected zero for nil amount, got %s", got)
	}
}
