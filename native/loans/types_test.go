package loans

import (
	"math"
	"math/big"
	"testing"
)

func TestPayoff(t *testing.T) {
	terms := &LoanTerms{
		Principal:    big.NewInt(1_000),
		MaxRepayment: big.NewInt(1_300),
		Start:        100,
		Duration:     1_000,
	}
	cases := []struct {
		name    string
		proRata bool
		now     uint64
		want    int64
	}{
		{"fixed before start", false, 50, 1_300},
		{"fixed at start", false, 100, 1_300},
		{"pro-rata at start", true, 100, 1_000},
		{"pro-rata quarter", true, 350, 1_075},
		{"pro-rata rounds down", true, 101, 1_000},
		{"pro-rata at maturity", true, 1_100, 1_300},
		{"pro-rata capped after maturity", true, 5_000, 1_300},
	}
	for _, tc := range cases {
		terms.ProRata = tc.proRata
		if got := terms.Payoff(tc.now); got.Int64() != tc.want {
			t.Fatalf("%s: expected %d, got %s", tc.name, tc.want, got)
		}
	}
}

func TestExpiry(t *testing.T) {
	terms := &LoanTerms{Start: 10, Duration: 5}
	if terms.Expired(15) {
		t.Fatalf("expected loan repayable at maturity")
	}
	if !terms.Expired(16) {
		t.Fatalf("expected loan expired after maturity")
	}
}

func TestMaturitySaturates(t *testing.T) {
	terms := &LoanTerms{Start: 10, Duration: math.MaxUint64}
	if got := terms.Maturity(); got != math.MaxUint64 {
		t.Fatalf("expected saturated maturity, got %d", got)
	}
	if terms.Expired(11) {
		t.Fatalf("expected loan not expired right after start")
	}
}
