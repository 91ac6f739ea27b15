package refinance_test

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core"
	"nftlend/core/coretest"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/loans"
	"nftlend/native/refinance"
	"nftlend/native/signing"
)

type fixture struct {
	h         *coretest.Harness
	borrower  coretest.Actor
	oldLender coretest.Actor
	newLender coretest.Actor
	asset     escrow.Asset
	oldLoan   uint64
	old       *loans.Engine
}

// newFixture opens a 100/110 loan and seeds the flash pool with 1000 at a
// 1% flash fee.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := coretest.New(t, func(c *core.Config) { c.FlashFeeBps = 100 })
	f := &fixture{h: h, borrower: h.NewActor(), oldLender: h.NewActor(), newLender: h.NewActor()}
	f.asset = h.MintNFT(f.borrower.Address, 1)
	f.oldLoan = h.Originate(f.borrower, f.oldLender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	old, err := h.Node.LoanContract(signing.AssetOffer)
	h.Must(err)
	f.old = old

	supplier := h.NewActor()
	h.Fund(coretest.Currency, supplier.Address, 1000)
	h.Approve(coretest.Currency, supplier.Address, core.PoolAddress, 1000)
	h.Must(h.Exec(func() error {
		_, err := h.Node.Pool().Supply(supplier.Address, coretest.Currency, big.NewInt(1000))
		return err
	}))
	return f
}

// request signs offer from the new lender for the given contract and funds
// the lender's side.
func (f *fixture) request(t *testing.T, offerType signing.OfferType, offer signing.Offer, nonce int64) refinance.Request {
	t.Helper()
	contract, err := f.h.Node.LoanContract(offerType)
	f.h.Must(err)
	net := new(big.Int).Sub(offer.Principal, nativeFee(offer)).Int64()
	f.h.Fund(offer.Currency, f.newLender.Address, net)
	f.h.Approve(offer.Currency, f.newLender.Address, contract.Address(), net)
	return refinance.Request{
		OldLoanContract: f.old.Address(),
		OldLoanID:       f.oldLoan,
		NewLoanContract: contract.Address(),
		Offer:           offer,
		Signature:       f.h.Sign(f.newLender, offerType, offer, nonce),
	}
}

func nativeFee(offer signing.Offer) *big.Int {
	if offer.OriginationFee == nil {
		return new(big.Int)
	}
	return offer.OriginationFee
}

func (f *fixture) refinance(caller ethcommon.Address, req refinance.Request) (*refinance.Result, error) {
	var res *refinance.Result
	err := f.h.Exec(func() error {
		var err error
		res, err = f.h.Node.Refinancer().Refinance(caller, req)
		return err
	})
	return res, err
}

func TestRefinanceChargesDeficit(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, signing.AssetOffer, coretest.Offer(50, 55, 1), 2)
	// Deficit: 110 payoff + 1 flash fee - 50 new principal.
	f.h.Approve(coretest.Currency, f.borrower.Address, core.RefinanceAddress, 61)

	res, err := f.refinance(f.borrower.Address, req)
	if err != nil {
		t.Fatalf("refinance: %v", err)
	}
	if res.Payoff.Int64() != 110 || res.FlashFee.Int64() != 1 || res.Deficit.Int64() != 61 || res.Surplus.Sign() != 0 {
		t.Fatalf("unexpected result: payoff %s fee %s deficit %s surplus %s", res.Payoff, res.FlashFee, res.Deficit, res.Surplus)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 39 {
		t.Fatalf("expected borrower left with 39, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, f.oldLender.Address); got.Int64() != 110 {
		t.Fatalf("expected old lender repaid 110, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, core.PoolAddress); got.Int64() != 1001 {
		t.Fatalf("expected pool to keep the flash fee, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, core.RefinanceAddress); got.Sign() != 0 {
		t.Fatalf("expected refinancer to hold nothing, got %s", got)
	}

	oldData, _ := f.h.Node.Coordinator().GetLoanData(f.oldLoan)
	if oldData.Status != coordinator.StatusRepaid {
		t.Fatalf("expected old loan REPAID, got %s", oldData.Status)
	}
	newData, _ := f.h.Node.Coordinator().GetLoanData(res.NewLoanID)
	if newData.Status != coordinator.StatusNew || newData.LoanContract != req.NewLoanContract {
		t.Fatalf("unexpected new loan data: %+v", newData)
	}
	borrower, _, _ := f.h.Node.Coordinator().ObligationReceiptOwner(res.NewLoanID)
	lender, _, _ := f.h.Node.Coordinator().PromissoryNoteOwner(res.NewLoanID)
	if borrower != f.borrower.Address || lender != f.newLender.Address {
		t.Fatalf("expected fresh receipt pair for borrower and new lender, got %s / %s", borrower.Hex(), lender.Hex())
	}
	if owner := f.h.OwnerOf(f.asset); owner != core.EscrowAddress {
		t.Fatalf("expected collateral back in escrow, got %s", owner.Hex())
	}
	terms, _ := f.old.LoanTerms(res.NewLoanID)
	lock, locked, _ := f.h.Node.Escrow().LockOf(terms.LockID)
	if !locked || lock.Locker != req.NewLoanContract {
		t.Fatalf("expected collateral locked by new contract, got %+v", lock)
	}
	if terms.Borrower != f.borrower.Address || terms.Principal.Int64() != 50 {
		t.Fatalf("unexpected new terms: %+v", terms)
	}
	if done := f.h.Recorder.OfType(refinance.EventTypeRefinanced); len(done) != 1 {
		t.Fatalf("expected one refinance event, got %d", len(done))
	}
}

func TestRefinancePaysSurplusNetOfOriginationFee(t *testing.T) {
	f := newFixture(t)
	offer := coretest.Offer(200, 220, 0)
	offer.CollateralID = nil
	offer.OriginationFee = big.NewInt(10)
	req := f.request(t, signing.CollectionOffer, offer, 1)

	res, err := f.refinance(f.borrower.Address, req)
	if err != nil {
		t.Fatalf("refinance: %v", err)
	}
	// 200 principal - 10 fee - 110 payoff - 1 flash fee.
	if res.Surplus.Int64() != 79 || res.Deficit.Sign() != 0 {
		t.Fatalf("expected surplus 79, got surplus %s deficit %s", res.Surplus, res.Deficit)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 179 {
		t.Fatalf("expected borrower balance 179, got %s", got)
	}
	newContract, _ := f.h.Node.LoanContract(signing.CollectionOffer)
	terms, err := newContract.LoanTerms(res.NewLoanID)
	if err != nil || terms.Principal.Int64() != 200 {
		t.Fatalf("expected new loan principal 200, got %+v (%v)", terms, err)
	}
}

func TestRefinanceDeficitIncludesOriginationFee(t *testing.T) {
	f := newFixture(t)
	offer := coretest.Offer(50, 55, 1)
	offer.OriginationFee = big.NewInt(5)
	req := f.request(t, signing.AssetOffer, offer, 2)
	// 110 payoff + 1 flash fee - (50 principal - 5 fee).
	f.h.Approve(coretest.Currency, f.borrower.Address, core.RefinanceAddress, 65)
	if _, err := f.refinance(f.borrower.Address, req); err == nil {
		t.Fatalf("expected an allowance of 65 to fall short")
	}

	f.h.Approve(coretest.Currency, f.borrower.Address, core.RefinanceAddress, 66)
	res, err := f.refinance(f.borrower.Address, req)
	if err != nil {
		t.Fatalf("refinance: %v", err)
	}
	if res.Deficit.Int64() != 66 || res.Surplus.Sign() != 0 {
		t.Fatalf("expected deficit 66, got deficit %s surplus %s", res.Deficit, res.Surplus)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 34 {
		t.Fatalf("expected borrower left with 34, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, f.newLender.Address); got.Sign() != 0 {
		t.Fatalf("expected new lender to fund 45 net, got balance %s", got)
	}
}

func TestRefinanceIntoRangeOffer(t *testing.T) {
	f := newFixture(t)
	newContract, err := f.h.Node.LoanContract(signing.CollectionRangeOffer)
	f.h.Must(err)

	outside := coretest.Offer(150, 160, 0)
	outside.CollateralID = nil
	outside.MinCollateralID = big.NewInt(2)
	outside.MaxCollateralID = big.NewInt(4)
	req := f.request(t, signing.CollectionRangeOffer, outside, 1)
	if _, err := f.refinance(f.borrower.Address, req); !errors.Is(err, loans.ErrCollateralMismatch) {
		t.Fatalf("expected ErrCollateralMismatch, got %v", err)
	}
	data, _ := f.h.Node.Coordinator().GetLoanData(f.oldLoan)
	if data.Status != coordinator.StatusNew {
		t.Fatalf("expected old loan untouched, got %s", data.Status)
	}
	oldTerms, _ := f.old.LoanTerms(f.oldLoan)
	if lock, locked, _ := f.h.Node.Escrow().LockOf(oldTerms.LockID); !locked || lock.Locker != f.old.Address() {
		t.Fatalf("expected collateral still locked by old contract, got %+v", lock)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 100 {
		t.Fatalf("expected borrower balance unchanged, got %s", got)
	}

	inside := outside.Clone()
	inside.MinCollateralID = big.NewInt(1)
	req = f.request(t, signing.CollectionRangeOffer, inside, 2)
	res, err := f.refinance(f.borrower.Address, req)
	if err != nil {
		t.Fatalf("refinance: %v", err)
	}
	// 150 principal - 110 payoff - 1 flash fee.
	if res.Surplus.Int64() != 39 {
		t.Fatalf("expected surplus 39, got %s", res.Surplus)
	}
	terms, err := newContract.LoanTerms(res.NewLoanID)
	if err != nil || terms.OfferType != signing.CollectionRangeOffer || terms.CollateralID.Int64() != 1 {
		t.Fatalf("unexpected range loan terms %+v (%v)", terms, err)
	}
	if lock, locked, _ := f.h.Node.Escrow().LockOf(terms.LockID); !locked || lock.Locker != newContract.Address() {
		t.Fatalf("expected collateral locked by range contract, got %+v", lock)
	}
}

func TestRefinanceRejections(t *testing.T) {
	f := newFixture(t)

	req := f.request(t, signing.AssetOffer, coretest.Offer(50, 55, 1), 2)
	stranger := f.h.NewActor()
	if _, err := f.refinance(stranger.Address, req); !errors.Is(err, refinance.ErrCallerNotBorrowerOfOldLoan) {
		t.Fatalf("expected ErrCallerNotBorrowerOfOldLoan, got %v", err)
	}

	other := coretest.Offer(50, 55, 1)
	other.Currency = coretest.OtherCurrency
	mismatch := f.request(t, signing.AssetOffer, other, 3)
	if _, err := f.refinance(f.borrower.Address, mismatch); !errors.Is(err, refinance.ErrDenominationMismatch) {
		t.Fatalf("expected ErrDenominationMismatch, got %v", err)
	}

	f.h.Advance(24*60*60 + 1)
	if _, err := f.refinance(f.borrower.Address, req); !errors.Is(err, refinance.ErrLoanExpired) {
		t.Fatalf("expected ErrLoanExpired, got %v", err)
	}
}

func TestRefinanceFollowsObligationReceipt(t *testing.T) {
	f := newFixture(t)
	holder := f.h.NewActor()
	f.h.Must(f.h.Exec(func() error {
		id, err := f.old.MintObligationReceipt(f.borrower.Address, f.oldLoan)
		if err != nil {
			return err
		}
		return f.h.Node.ObligationReceipts().Transfer(f.borrower.Address, holder.Address, id)
	}))
	req := f.request(t, signing.AssetOffer, coretest.Offer(150, 160, 1), 2)
	if _, err := f.refinance(f.borrower.Address, req); !errors.Is(err, refinance.ErrCallerNotBorrowerOfOldLoan) {
		t.Fatalf("expected original borrower rejected once receipt moved, got %v", err)
	}
	res, err := f.refinance(holder.Address, req)
	if err != nil {
		t.Fatalf("refinance by receipt holder: %v", err)
	}
	if got := f.h.Balance(coretest.Currency, holder.Address); got.Int64() != 39 {
		t.Fatalf("expected surplus 39 to receipt holder, got %s", got)
	}
	owner, _, _ := f.h.Node.Coordinator().ObligationReceiptOwner(res.NewLoanID)
	if owner != holder.Address {
		t.Fatalf("expected new obligation receipt for holder, got %s", owner.Hex())
	}
}

func TestRefinanceRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, signing.AssetOffer, coretest.Offer(50, 55, 1), 2)
	// No allowance for the 61 deficit.
	if _, err := f.refinance(f.borrower.Address, req); err == nil {
		t.Fatalf("expected refinance to fail without deficit allowance")
	}

	data, _ := f.h.Node.Coordinator().GetLoanData(f.oldLoan)
	if data.Status != coordinator.StatusNew {
		t.Fatalf("expected old loan untouched, got %s", data.Status)
	}
	total, _ := f.h.Node.Coordinator().TotalNumLoans()
	if total != 1 {
		t.Fatalf("expected no new loan, got %d loans", total)
	}
	oldTerms, _ := f.old.LoanTerms(f.oldLoan)
	lock, locked, _ := f.h.Node.Escrow().LockOf(oldTerms.LockID)
	if !locked || lock.Locker != f.old.Address() {
		t.Fatalf("expected collateral still locked by old contract, got %+v", lock)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 100 {
		t.Fatalf("expected borrower balance unchanged, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, f.oldLender.Address); got.Sign() != 0 {
		t.Fatalf("expected old lender unpaid, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, core.PoolAddress); got.Int64() != 1000 {
		t.Fatalf("expected pool balance unchanged, got %s", got)
	}
	newContract, _ := f.h.Node.LoanContract(signing.AssetOffer)
	if used, _ := newContract.NonceUsed(f.newLender.Address, big.NewInt(2)); used {
		t.Fatalf("expected new lender nonce unused after rollback")
	}

	// The same request succeeds once the borrower covers the deficit.
	f.h.Approve(coretest.Currency, f.borrower.Address, core.RefinanceAddress, 61)
	if _, err := f.refinance(f.borrower.Address, req); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	payoff, fee, err := f.h.Node.Refinancer().Quote(f.old.Address(), f.oldLoan)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if payoff.Int64() != 110 || fee.Int64() != 1 {
		t.Fatalf("expected 110 payoff and fee 1, got %s and %s", payoff, fee)
	}
}
