package escrow

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	"nftlend/core/state"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
	"nftlend/native/nft"
	"nftlend/native/registry"
	"nftlend/storage"
)

var (
	admin        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	borrower     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000b1")
	lender       = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c1")
	loanContract = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d1")
	kitties      = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e1")
	punks        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e2")
	badges       = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e3")
	names        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e4")
)

type fixture struct {
	escrow   *Engine
	ledger   *nft.Ledger
	registry *registry.Registry
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	reg := registry.New()
	reg.SetState(st)
	if err := reg.InitOwner(admin); err != nil {
		t.Fatalf("init owner: %v", err)
	}
	must(t, reg.SetAssetTypes(admin,
		[]string{"erc721", "erc1155", "punk", "name"},
		[]string{WrapperERC721, WrapperERC1155, WrapperPunks, WrapperNames}))
	must(t, reg.SetPermittedCollaterals(admin,
		[]ethcommon.Address{kitties, badges, punks, names},
		[]string{"erc721", "erc1155", "punk", "name"}))
	must(t, reg.RegisterLoanType(admin, "ASSET_OFFER", loanContract))

	ledger := nft.NewLedger()
	ledger.SetState(st)

	rec := &events.Recorder{}
	engine := NewEngine(crypto.ModuleAddress("escrow"))
	engine.SetState(st)
	engine.SetRegistry(reg)
	engine.SetPauses(reg)
	engine.SetEmitter(rec)
	engine.RegisterAdapters(DefaultAdapters(ledger))
	engine.SetNowFunc(func() int64 { return 100 })
	return &fixture{escrow: engine, ledger: ledger, registry: reg, recorder: rec}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func asset(contract ethcommon.Address, id int64) Asset {
	return Asset{Contract: contract, TokenID: big.NewInt(id)}
}

func lock(t *testing.T, f *fixture, a Asset, owner ethcommon.Address) uint64 {
	t.Helper()
	id, err := f.escrow.Lock(loanContract, a, owner)
	if err != nil {
		t.Fatalf("lock %s: %v", a, err)
	}
	return id
}

func TestLockAndReleaseAcrossStandards(t *testing.T) {
	f := newFixture(t)
	pool := f.escrow.Address()

	must(t, f.ledger.Mint721(kitties, borrower, big.NewInt(1)))
	must(t, f.ledger.Mint1155(badges, borrower, big.NewInt(2), big.NewInt(1)))
	must(t, f.ledger.MintPunk(punks, borrower, big.NewInt(3)))
	must(t, f.ledger.RegisterName(names, borrower, big.NewInt(4)))

	assets := []Asset{asset(kitties, 1), asset(badges, 2), asset(punks, 3), asset(names, 4)}
	ids := make([]uint64, len(assets))
	for i, a := range assets {
		must(t, f.escrow.GrantCustody(borrower, a))
		ids[i] = lock(t, f, a, borrower)
		if ids[i] != uint64(i+1) {
			t.Fatalf("expected lock id %d, got %d", i+1, ids[i])
		}
		adapter, _ := f.escrow.adapterFor(mustWrapper(t, f, a))
		if held, err := adapter.OwnedBy(pool, a); err != nil || !held {
			t.Fatalf("expected pool custody of %s, held=%v err=%v", a, held, err)
		}
		l, ok, err := f.escrow.LockOf(ids[i])
		if err != nil || !ok || l.Locker != loanContract || l.Owner != borrower || l.LockedAt != 100 {
			t.Fatalf("unexpected lock %+v ok=%v err=%v", l, ok, err)
		}
		if got := l.Asset(); got.String() != a.String() {
			t.Fatalf("expected lock on %s, got %s", a, got)
		}
	}

	for i, a := range assets {
		if err := f.escrow.Release(lender, ids[i], lender); !errors.Is(err, ErrNotLocker) {
			t.Fatalf("expected ErrNotLocker, got %v", err)
		}
		must(t, f.escrow.Release(loanContract, ids[i], lender))
		adapter, _ := f.escrow.adapterFor(mustWrapper(t, f, a))
		if held, _ := adapter.OwnedBy(lender, a); !held {
			t.Fatalf("expected lender to receive %s", a)
		}
		if _, ok, _ := f.escrow.LockOf(ids[i]); ok {
			t.Fatalf("lock must be cleared after release")
		}
	}
	if got := len(f.recorder.OfType(EventTypeCollateralReleased)); got != len(assets) {
		t.Fatalf("expected %d release events, got %d", len(assets), got)
	}
}

func mustWrapper(t *testing.T, f *fixture, a Asset) string {
	t.Helper()
	wrapper, err := f.registry.WrapperFor(a.Contract)
	if err != nil {
		t.Fatalf("wrapper: %v", err)
	}
	return wrapper
}

func TestMultiTokenUnitsLockIndependently(t *testing.T) {
	f := newFixture(t)
	a := asset(badges, 2)
	must(t, f.ledger.Mint1155(badges, borrower, big.NewInt(2), big.NewInt(2)))
	must(t, f.ledger.Mint1155(badges, lender, big.NewInt(2), big.NewInt(1)))
	must(t, f.escrow.GrantCustody(borrower, a))
	must(t, f.escrow.GrantCustody(lender, a))

	first := lock(t, f, a, borrower)
	second := lock(t, f, a, lender)
	third := lock(t, f, a, borrower)
	if first == second || second == third {
		t.Fatalf("expected distinct lock ids, got %d %d %d", first, second, third)
	}
	if _, err := f.escrow.Lock(loanContract, a, lender); !errors.Is(err, ErrNotAssetOwner) {
		t.Fatalf("expected ErrNotAssetOwner once every unit is pledged, got %v", err)
	}
	if bal, _ := f.ledger.BalanceOf1155(badges, f.escrow.Address(), big.NewInt(2)); bal.Int64() != 3 {
		t.Fatalf("expected pool to hold 3 units, got %s", bal)
	}

	must(t, f.escrow.Release(loanContract, second, lender))
	if bal, _ := f.ledger.BalanceOf1155(badges, lender, big.NewInt(2)); bal.Int64() != 1 {
		t.Fatalf("expected lender unit back, got %s", bal)
	}
	if l, ok, _ := f.escrow.LockOf(first); !ok || l.Owner != borrower {
		t.Fatalf("expected borrower lock untouched, got %+v", l)
	}
	must(t, f.escrow.Release(loanContract, first, borrower))
	must(t, f.escrow.Release(loanContract, third, borrower))
	if bal, _ := f.ledger.BalanceOf1155(badges, borrower, big.NewInt(2)); bal.Int64() != 2 {
		t.Fatalf("expected borrower units back, got %s", bal)
	}
	if err := f.escrow.Release(loanContract, first, borrower); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked on second release, got %v", err)
	}
}

func TestLockAuthorization(t *testing.T) {
	f := newFixture(t)
	a := asset(kitties, 1)
	must(t, f.ledger.Mint721(kitties, borrower, big.NewInt(1)))

	if _, err := f.escrow.Lock(lender, a, borrower); !errors.Is(err, ErrNotLoanContract) {
		t.Fatalf("expected ErrNotLoanContract, got %v", err)
	}
	if _, err := f.escrow.Lock(loanContract, a, borrower); !errors.Is(err, nft.ErrNotAuthorized) {
		t.Fatalf("expected missing approval to fail, got %v", err)
	}
	must(t, f.escrow.GrantCustody(borrower, a))
	id := lock(t, f, a, borrower)
	if _, err := f.escrow.Lock(loanContract, a, borrower); !errors.Is(err, ErrNotAssetOwner) {
		t.Fatalf("expected ErrNotAssetOwner for a pledged token, got %v", err)
	}
	if _, err := f.escrow.Lock(loanContract, asset(ethcommon.HexToAddress("0x99"), 1), borrower); !errors.Is(err, registry.ErrUnknownAssetType) {
		t.Fatalf("expected unpermitted collateral to fail, got %v", err)
	}
	if err := f.escrow.Release(loanContract, id+1, borrower); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}

	must(t, f.registry.Pause(admin, "escrow"))
	if err := f.escrow.Release(loanContract, id, borrower); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestPersonalEscrow(t *testing.T) {
	f := newFixture(t)
	a := asset(kitties, 7)
	must(t, f.ledger.Mint721(kitties, borrower, big.NewInt(7)))

	if err := f.escrow.DepositPersonal(borrower, a); !errors.Is(err, ErrNoPersonalEscrow) {
		t.Fatalf("expected ErrNoPersonalEscrow, got %v", err)
	}
	vault, err := f.escrow.CreatePersonalEscrow(borrower)
	must(t, err)
	if _, err := f.escrow.CreatePersonalEscrow(borrower); !errors.Is(err, ErrPersonalEscrowExists) {
		t.Fatalf("expected ErrPersonalEscrowExists, got %v", err)
	}
	must(t, f.escrow.DepositPersonal(borrower, a))
	if owner, _ := f.ledger.OwnerOf(kitties, big.NewInt(7)); owner != vault {
		t.Fatalf("expected vault custody, got %s", owner.Hex())
	}

	// Locking leaves the asset in the vault.
	id := lock(t, f, a, borrower)
	l, _, _ := f.escrow.LockOf(id)
	if !l.Personal || l.Custody != vault {
		t.Fatalf("expected in-place personal lock, got %+v", l)
	}
	if _, err := f.escrow.Lock(loanContract, a, borrower); !errors.Is(err, ErrNotAssetOwner) {
		t.Fatalf("a locked vault asset must not be pledged twice, got %v", err)
	}
	if err := f.escrow.ReleaseNFT(borrower, a, borrower); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("locked vault asset must not be withdrawable, got %v", err)
	}

	// Repayment returns it to the owner, who still finds it in the vault.
	must(t, f.escrow.Release(loanContract, id, borrower))
	if owner, _ := f.ledger.OwnerOf(kitties, big.NewInt(7)); owner != vault {
		t.Fatalf("expected asset to remain in vault, got %s", owner.Hex())
	}
	if err := f.escrow.ReleaseNFT(lender, a, lender); !errors.Is(err, ErrNotDeposited) {
		t.Fatalf("expected ErrNotDeposited for another holder, got %v", err)
	}
	must(t, f.escrow.ReleaseNFT(borrower, a, borrower))
	if owner, _ := f.ledger.OwnerOf(kitties, big.NewInt(7)); owner != borrower {
		t.Fatalf("expected borrower to withdraw, got %s", owner.Hex())
	}
	if _, ok, _ := f.escrow.DepositOf(a, borrower); ok {
		t.Fatalf("deposit record must be cleared")
	}
}

func TestPersonalVaultsHoldUnitsPerOwner(t *testing.T) {
	f := newFixture(t)
	a := asset(badges, 5)
	must(t, f.ledger.Mint1155(badges, borrower, big.NewInt(5), big.NewInt(2)))
	must(t, f.ledger.Mint1155(badges, lender, big.NewInt(5), big.NewInt(1)))
	for _, owner := range []ethcommon.Address{borrower, lender} {
		_, err := f.escrow.CreatePersonalEscrow(owner)
		must(t, err)
		must(t, f.escrow.DepositPersonal(owner, a))
	}
	must(t, f.escrow.DepositPersonal(borrower, a))
	if d, ok, _ := f.escrow.DepositOf(a, borrower); !ok || d.Units != 2 {
		t.Fatalf("expected two borrower units, got %+v", d)
	}

	borrowerLock := lock(t, f, a, borrower)
	lenderLock := lock(t, f, a, lender)
	for id, owner := range map[uint64]ethcommon.Address{borrowerLock: borrower, lenderLock: lender} {
		l, _, _ := f.escrow.LockOf(id)
		if !l.Personal || l.Owner != owner || l.Custody != f.escrow.PersonalVaultAddress(owner) {
			t.Fatalf("expected in-place lock for %s, got %+v", owner.Hex(), l)
		}
	}

	// One borrower unit is still free to withdraw.
	must(t, f.escrow.ReleaseNFT(borrower, a, borrower))
	if err := f.escrow.ReleaseNFT(borrower, a, borrower); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected remaining unit to stay locked, got %v", err)
	}
	if err := f.escrow.ReleaseNFT(lender, a, lender); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected lender unit to stay locked, got %v", err)
	}

	must(t, f.escrow.Release(loanContract, lenderLock, borrower))
	if bal, _ := f.ledger.BalanceOf1155(badges, borrower, big.NewInt(5)); bal.Int64() != 2 {
		t.Fatalf("expected liquidated unit delivered, got %s", bal)
	}
	if _, ok, _ := f.escrow.DepositOf(a, lender); ok {
		t.Fatalf("lender deposit must be cleared once its unit leaves the vault")
	}
	if d, _, _ := f.escrow.DepositOf(a, borrower); d.Units != 1 || d.Locked != 1 {
		t.Fatalf("expected borrower deposit untouched, got %+v", d)
	}
}

func TestPersonalEscrowLiquidationLeavesVault(t *testing.T) {
	f := newFixture(t)
	a := asset(kitties, 8)
	must(t, f.ledger.Mint721(kitties, borrower, big.NewInt(8)))
	_, err := f.escrow.CreatePersonalEscrow(borrower)
	must(t, err)
	must(t, f.escrow.DepositPersonal(borrower, a))
	id := lock(t, f, a, borrower)

	must(t, f.escrow.Release(loanContract, id, lender))
	if owner, _ := f.ledger.OwnerOf(kitties, big.NewInt(8)); owner != lender {
		t.Fatalf("expected lender to receive liquidated asset, got %s", owner.Hex())
	}
	if _, ok, _ := f.escrow.DepositOf(a, borrower); ok {
		t.Fatalf("deposit must be cleared once the asset leaves the vault")
	}
}
