package bank

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	"nftlend/core/state"
	"nftlend/storage"
)

var (
	weth  = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice = ethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000b1")
	carol = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newLedger(t *testing.T) (*Ledger, *events.Recorder) {
	t.Helper()
	ledger := NewLedger()
	ledger.SetState(state.NewManager(storage.NewMemDB()))
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	return ledger, rec
}

func mustBalance(t *testing.T, l *Ledger, holder ethcommon.Address) int64 {
	t.Helper()
	bal, err := l.Balance(weth, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestMintAndTransfer(t *testing.T) {
	ledger, rec := newLedger(t)
	if err := ledger.Mint(weth, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(weth, alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := mustBalance(t, ledger, alice); got != 70 {
		t.Fatalf("expected alice 70, got %d", got)
	}
	if got := mustBalance(t, ledger, bob); got != 30 {
		t.Fatalf("expected bob 30, got %d", got)
	}
	supply, _ := ledger.TotalSupply(weth)
	if supply.Int64() != 100 {
		t.Fatalf("expected supply 100, got %s", supply)
	}
	if err := ledger.Transfer(weth, bob, alice, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(weth, bob, alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(rec.OfType(EventTypeTransfer)) != 1 {
		t.Fatalf("expected one transfer event, got %d", len(rec.OfType(EventTypeTransfer)))
	}
}

func TestAllowances(t *testing.T) {
	ledger, _ := newLedger(t)
	if err := ledger.Mint(weth, alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(bob, weth, alice, carol, big.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := ledger.Approve(weth, alice, bob, big.NewInt(20)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(bob, weth, alice, carol, big.NewInt(15)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, _ := ledger.Allowance(weth, alice, bob)
	if remaining.Int64() != 5 {
		t.Fatalf("expected allowance 5, got %s", remaining)
	}
	if got := mustBalance(t, ledger, carol); got != 15 {
		t.Fatalf("expected carol 15, got %d", got)
	}
	if err := ledger.TransferFrom(bob, weth, alice, carol, big.NewInt(6)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}
