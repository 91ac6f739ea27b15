package loans_test

import (
	"errors"
	"math"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core"
	"nftlend/core/coretest"
	nativecommon "nftlend/native/common"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/loans"
	"nftlend/native/signing"
)

const day = 24 * 60 * 60

type fixture struct {
	h        *coretest.Harness
	borrower coretest.Actor
	lender   coretest.Actor
}

func newFixture(t *testing.T, mutate ...func(*core.Config)) *fixture {
	t.Helper()
	h := coretest.New(t, mutate...)
	return &fixture{h: h, borrower: h.NewActor(), lender: h.NewActor()}
}

func (f *fixture) contract(t *testing.T, offerType signing.OfferType) *loans.Engine {
	t.Helper()
	engine, err := f.h.Node.LoanContract(offerType)
	if err != nil {
		t.Fatalf("loan contract: %v", err)
	}
	return engine
}

// accept prepares approvals and returns the AcceptOffer error without failing.
func (f *fixture) accept(t *testing.T, offerType signing.OfferType, offer signing.Offer, sig signing.Signature, collateralID int64) (uint64, error) {
	t.Helper()
	contract := f.contract(t, offerType)
	var loanID uint64
	err := f.h.Exec(func() error {
		var err error
		loanID, err = contract.AcceptOffer(f.borrower.Address, offer, sig, big.NewInt(collateralID))
		return err
	})
	return loanID, err
}

func (f *fixture) prepare(offerType signing.OfferType, asset escrow.Asset, principal int64) {
	contract, _ := f.h.Node.LoanContract(offerType)
	f.h.GrantCustody(f.borrower.Address, asset)
	f.h.Fund(coretest.Currency, f.lender.Address, principal)
	f.h.Approve(coretest.Currency, f.lender.Address, contract.Address(), principal)
}

func TestAcceptAssetOffer(t *testing.T) {
	f := newFixture(t)
	asset := f.h.MintNFT(f.borrower.Address, 1)
	offer := coretest.Offer(100, 110, 1)

	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, offer, 1, 1)
	if loanID != 1 {
		t.Fatalf("expected first loan id 1, got %d", loanID)
	}
	if got := f.h.Balance(coretest.Currency, f.borrower.Address); got.Int64() != 100 {
		t.Fatalf("expected borrower to receive 100, got %s", got)
	}
	if owner := f.h.OwnerOf(asset); owner != core.EscrowAddress {
		t.Fatalf("expected collateral in escrow, got %s", owner.Hex())
	}
	data, err := f.h.Node.Coordinator().GetLoanData(loanID)
	if err != nil {
		t.Fatalf("loan data: %v", err)
	}
	contract := f.contract(t, signing.AssetOffer)
	if data.Status != coordinator.StatusNew || data.LoanContract != contract.Address() {
		t.Fatalf("unexpected loan data: %+v", data)
	}
	used, err := contract.NonceUsed(f.lender.Address, big.NewInt(1))
	if err != nil || !used {
		t.Fatalf("expected nonce consumed, got %v (%v)", used, err)
	}
	terms, err := contract.LoanTerms(loanID)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if terms.Lender != f.lender.Address || terms.Borrower != f.borrower.Address || terms.Start != uint64(coretest.GenesisTime) {
		t.Fatalf("unexpected terms: %+v", terms)
	}
	if started := f.h.Recorder.OfType(loans.EventTypeLoanStarted); len(started) != 1 {
		t.Fatalf("expected one started event, got %d", len(started))
	}
}

func TestAcceptRejectsReusedNonce(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	second := f.h.MintNFT(f.borrower.Address, 2)
	f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)

	offer := coretest.Offer(100, 110, 2)
	f.prepare(signing.AssetOffer, second, 100)
	sig := f.h.Sign(f.lender, signing.AssetOffer, offer, 1)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 2); !errors.Is(err, loans.ErrLenderNonceInvalid) {
		t.Fatalf("expected ErrLenderNonceInvalid, got %v", err)
	}
}

func TestCollateralPredicates(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 3; id++ {
		f.h.MintNFT(f.borrower.Address, id)
	}

	// Asset offers insist on the named token.
	asset := coretest.Offer(100, 110, 1)
	f.prepare(signing.AssetOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(2)}, 100)
	sig := f.h.Sign(f.lender, signing.AssetOffer, asset, 1)
	if _, err := f.accept(t, signing.AssetOffer, asset, sig, 2); !errors.Is(err, loans.ErrCollateralMismatch) {
		t.Fatalf("expected ErrCollateralMismatch, got %v", err)
	}

	// Range offers accept ids inside [min, max] only.
	ranged := coretest.Offer(100, 110, 0)
	ranged.CollateralID = nil
	ranged.MinCollateralID = big.NewInt(1)
	ranged.MaxCollateralID = big.NewInt(2)
	f.prepare(signing.CollectionRangeOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(3)}, 100)
	sig = f.h.Sign(f.lender, signing.CollectionRangeOffer, ranged, 2)
	if _, err := f.accept(t, signing.CollectionRangeOffer, ranged, sig, 3); !errors.Is(err, loans.ErrCollateralMismatch) {
		t.Fatalf("expected ErrCollateralMismatch for out-of-range id, got %v", err)
	}
	f.prepare(signing.CollectionRangeOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(2)}, 100)
	if _, err := f.accept(t, signing.CollectionRangeOffer, ranged, sig, 2); err != nil {
		t.Fatalf("expected in-range id to be accepted, got %v", err)
	}

	// Collection offers take any id.
	collection := coretest.Offer(100, 110, 0)
	collection.CollateralID = nil
	f.prepare(signing.CollectionOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(3)}, 100)
	sig = f.h.Sign(f.lender, signing.CollectionOffer, collection, 3)
	if _, err := f.accept(t, signing.CollectionOffer, collection, sig, 3); err != nil {
		t.Fatalf("expected collection offer to accept any id, got %v", err)
	}
}

func TestCollectionLiquidityCap(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 2; id++ {
		f.h.MintNFT(f.borrower.Address, id)
	}
	offer := coretest.Offer(100, 110, 0)
	offer.CollateralID = nil
	offer.LiquidityCap = big.NewInt(150)
	sig := f.h.Sign(f.lender, signing.CollectionOffer, offer, 9)

	f.prepare(signing.CollectionOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}, 100)
	if _, err := f.accept(t, signing.CollectionOffer, offer, sig, 1); err != nil {
		t.Fatalf("first draw: %v", err)
	}
	contract := f.contract(t, signing.CollectionOffer)
	drawn, err := contract.Drawn(f.lender.Address, big.NewInt(9))
	if err != nil || drawn.Int64() != 100 {
		t.Fatalf("expected 100 drawn, got %v (%v)", drawn, err)
	}
	if used, _ := contract.NonceUsed(f.lender.Address, big.NewInt(9)); used {
		t.Fatalf("capped offers must not consume the nonce")
	}

	f.prepare(signing.CollectionOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(2)}, 100)
	if _, err := f.accept(t, signing.CollectionOffer, offer, sig, 2); !errors.Is(err, loans.ErrLiquidityCapExceeded) {
		t.Fatalf("expected ErrLiquidityCapExceeded, got %v", err)
	}
}

func TestTermChecks(t *testing.T) {
	unlisted := ethcommon.HexToAddress("0x0000000000000000000000000000000000bad001")
	cases := []struct {
		name   string
		mutate func(*signing.Offer)
		want   error
	}{
		{"negative interest", func(o *signing.Offer) { o.MaxRepayment = big.NewInt(99) }, loans.ErrNegativeInterest},
		{"zero duration", func(o *signing.Offer) { o.Duration = 0 }, loans.ErrZeroDuration},
		{"duration above max", func(o *signing.Offer) { o.Duration = 400 * day }, loans.ErrLoanDurationExceedsMaximum},
		{"fee equals principal", func(o *signing.Offer) { o.OriginationFee = big.NewInt(100) }, loans.ErrOriginationFeeTooHigh},
		{"zero principal", func(o *signing.Offer) { o.Principal = big.NewInt(0) }, loans.ErrInvalidPrincipal},
		{"currency not permitted", func(o *signing.Offer) { o.Currency = unlisted }, loans.ErrCurrencyNotPermitted},
		{"collateral not permitted", func(o *signing.Offer) { o.CollateralContract = unlisted }, loans.ErrCollateralNotPermitted},
		{"borrower not allowed", func(o *signing.Offer) { o.AllowedBorrowers = []ethcommon.Address{unlisted} }, loans.ErrBorrowerNotAllowed},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.h.MintNFT(f.borrower.Address, 1)
			offer := coretest.Offer(100, 110, 1)
			tc.mutate(&offer)
			f.prepare(signing.AssetOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}, 100)
			sig := f.h.Sign(f.lender, signing.AssetOffer, offer, int64(i))
			if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAcceptRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	offer := coretest.Offer(100, 110, 1)
	f.prepare(signing.AssetOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}, 100)

	impostor := f.h.NewActor()
	sig := f.h.Sign(impostor, signing.AssetOffer, offer, 1)
	sig.Signer = f.lender.Address
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, loans.ErrInvalidLenderSignature) {
		t.Fatalf("expected ErrInvalidLenderSignature, got %v", err)
	}

	// Signed for a different taxonomy.
	sig = f.h.Sign(f.lender, signing.CollectionOffer, offer, 2)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, loans.ErrInvalidLenderSignature) {
		t.Fatalf("expected cross-taxonomy signature rejected, got %v", err)
	}

	sig = f.h.Sign(f.lender, signing.AssetOffer, offer, 3)
	f.h.Advance(3601)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, signing.ErrSignatureExpired) {
		t.Fatalf("expected ErrSignatureExpired, got %v", err)
	}
}

func TestFailedAcceptLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	asset := f.h.MintNFT(f.borrower.Address, 1)
	offer := coretest.Offer(100, 110, 1)
	f.h.GrantCustody(f.borrower.Address, asset)
	f.h.Fund(coretest.Currency, f.lender.Address, 100)
	// No allowance for the loan contract: funding fails after the lock.
	sig := f.h.Sign(f.lender, signing.AssetOffer, offer, 1)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); err == nil {
		t.Fatalf("expected funding failure")
	}
	if owner := f.h.OwnerOf(asset); owner != f.borrower.Address {
		t.Fatalf("expected collateral back with borrower, got %s", owner.Hex())
	}
	total, _ := f.h.Node.Coordinator().TotalNumLoans()
	if total != 0 {
		t.Fatalf("expected no registered loans, got %d", total)
	}
	if used, _ := f.contract(t, signing.AssetOffer).NonceUsed(f.lender.Address, big.NewInt(1)); used {
		t.Fatalf("expected nonce to survive a reverted acceptance")
	}
}

func TestPayBackLoanWithAdminFee(t *testing.T) {
	f := newFixture(t, func(c *core.Config) { c.AdminFeeBps = 1000 })
	asset := f.h.MintNFT(f.borrower.Address, 1)
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	contract := f.contract(t, signing.AssetOffer)

	f.h.Fund(coretest.Currency, f.borrower.Address, 10)
	f.h.Approve(coretest.Currency, f.borrower.Address, contract.Address(), 110)
	f.h.Must(f.h.Exec(func() error { return contract.PayBackLoan(f.borrower.Address, loanID) }))

	if got := f.h.Balance(coretest.Currency, f.lender.Address); got.Int64() != 109 {
		t.Fatalf("expected lender to net 109, got %s", got)
	}
	if got := f.h.Balance(coretest.Currency, core.TreasuryAddress); got.Int64() != 1 {
		t.Fatalf("expected treasury fee 1, got %s", got)
	}
	if owner := f.h.OwnerOf(asset); owner != f.borrower.Address {
		t.Fatalf("expected collateral returned, got %s", owner.Hex())
	}
	data, _ := f.h.Node.Coordinator().GetLoanData(loanID)
	if data.Status != coordinator.StatusRepaid {
		t.Fatalf("expected REPAID, got %s", data.Status)
	}
	if err := f.h.Exec(func() error { return contract.PayBackLoan(f.borrower.Address, loanID) }); !errors.Is(err, loans.ErrLoanAlreadyResolved) {
		t.Fatalf("expected second repayment to fail, got %v", err)
	}
}

func TestProRataPayoff(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	offer := coretest.Offer(100, 110, 1)
	offer.ProRata = true
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, offer, 1, 1)
	contract := f.contract(t, signing.AssetOffer)

	f.h.Advance(day / 2)
	payoff, err := contract.PayoffAmount(loanID)
	if err != nil || payoff.Int64() != 105 {
		t.Fatalf("expected half-term payoff 105, got %v (%v)", payoff, err)
	}
	f.h.Advance(day / 2)
	payoff, _ = contract.PayoffAmount(loanID)
	if payoff.Int64() != 110 {
		t.Fatalf("expected full payoff at maturity, got %s", payoff)
	}
}

func TestLiquidateOverdueLoan(t *testing.T) {
	f := newFixture(t)
	asset := f.h.MintNFT(f.borrower.Address, 1)
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	contract := f.contract(t, signing.AssetOffer)
	liquidate := func(caller ethcommon.Address) error {
		return f.h.Exec(func() error { return contract.LiquidateOverdueLoan(caller, loanID) })
	}

	if err := liquidate(f.lender.Address); !errors.Is(err, loans.ErrLoanNotOverdue) {
		t.Fatalf("expected ErrLoanNotOverdue, got %v", err)
	}
	f.h.Advance(day + 1)
	if err := f.h.Exec(func() error { return contract.PayBackLoan(f.borrower.Address, loanID) }); !errors.Is(err, loans.ErrLoanExpired) {
		t.Fatalf("expected ErrLoanExpired, got %v", err)
	}
	if err := liquidate(f.borrower.Address); !errors.Is(err, loans.ErrOnlyLender) {
		t.Fatalf("expected ErrOnlyLender, got %v", err)
	}
	f.h.Must(liquidate(f.lender.Address))
	if owner := f.h.OwnerOf(asset); owner != f.lender.Address {
		t.Fatalf("expected lender to take collateral, got %s", owner.Hex())
	}
	data, _ := f.h.Node.Coordinator().GetLoanData(loanID)
	if data.Status != coordinator.StatusLiquidated {
		t.Fatalf("expected LIQUIDATED, got %s", data.Status)
	}
	if err := liquidate(f.lender.Address); !errors.Is(err, loans.ErrLoanAlreadyResolved) {
		t.Fatalf("expected ErrLoanAlreadyResolved, got %v", err)
	}
}

func TestUnboundedDurationCannotWrapMaturity(t *testing.T) {
	f := newFixture(t, func(c *core.Config) { c.MaxLoanDuration = 0 })
	f.h.MintNFT(f.borrower.Address, 1)
	asset := escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}
	contract := f.contract(t, signing.AssetOffer)

	offer := coretest.Offer(100, 110, 1)
	offer.Duration = math.MaxUint64
	f.prepare(signing.AssetOffer, asset, 100)
	if _, err := f.accept(t, signing.AssetOffer, offer, f.h.Sign(f.lender, signing.AssetOffer, offer, 1), 1); !errors.Is(err, loans.ErrLoanDurationExceedsMaximum) {
		t.Fatalf("expected ErrLoanDurationExceedsMaximum, got %v", err)
	}

	offer.Duration = math.MaxUint64 - uint64(f.h.Now())
	loanID, err := f.accept(t, signing.AssetOffer, offer, f.h.Sign(f.lender, signing.AssetOffer, offer, 2), 1)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	terms, _ := contract.LoanTerms(loanID)
	if terms.Maturity() != math.MaxUint64 {
		t.Fatalf("expected maturity at the last timestamp, got %d", terms.Maturity())
	}
	if err := f.h.Exec(func() error { return contract.LiquidateOverdueLoan(f.lender.Address, loanID) }); !errors.Is(err, loans.ErrLoanNotOverdue) {
		t.Fatalf("expected ErrLoanNotOverdue, got %v", err)
	}

	reneg := signing.Renegotiation{LoanID: loanID, NewDuration: math.MaxUint64, NewMaxRepayment: big.NewInt(110), Fee: big.NewInt(0)}
	sig, err := signing.SignRenegotiation(f.lender.Key, reneg, big.NewInt(3), uint64(f.h.Now()+3600), contract.Verifier().Domain())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = f.h.Exec(func() error {
		return contract.RenegotiateLoan(f.borrower.Address, loanID, reneg.NewDuration, reneg.NewMaxRepayment, reneg.Fee, false, sig)
	})
	if !errors.Is(err, loans.ErrLoanDurationExceedsMaximum) {
		t.Fatalf("expected wrapping renegotiation rejected, got %v", err)
	}
}

func TestReceiptsCarryLoanRights(t *testing.T) {
	f := newFixture(t)
	asset := f.h.MintNFT(f.borrower.Address, 1)
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	contract := f.contract(t, signing.AssetOffer)
	noteHolder, receiptHolder := f.h.NewActor(), f.h.NewActor()

	var noteID, receiptID uint64
	f.h.Must(f.h.Exec(func() error {
		var err error
		if noteID, err = contract.MintPromissoryNote(f.lender.Address, loanID); err != nil {
			return err
		}
		if receiptID, err = contract.MintObligationReceipt(f.borrower.Address, loanID); err != nil {
			return err
		}
		if err := f.h.Node.PromissoryNotes().Transfer(f.lender.Address, noteHolder.Address, noteID); err != nil {
			return err
		}
		return f.h.Node.ObligationReceipts().Transfer(f.borrower.Address, receiptHolder.Address, receiptID)
	}))
	if err := f.h.Exec(func() error {
		_, err := contract.MintPromissoryNote(f.lender.Address, loanID)
		return err
	}); !errors.Is(err, coordinator.ErrPromissoryNoteAlreadyMinted) {
		t.Fatalf("expected second note mint to fail, got %v", err)
	}

	lender, _ := contract.CurrentLender(loanID)
	borrower, _ := contract.CurrentBorrower(loanID)
	if lender != noteHolder.Address || borrower != receiptHolder.Address {
		t.Fatalf("expected rights to follow receipts, got lender %s borrower %s", lender.Hex(), borrower.Hex())
	}

	f.h.Fund(coretest.Currency, f.borrower.Address, 10)
	f.h.Approve(coretest.Currency, f.borrower.Address, contract.Address(), 110)
	f.h.Must(f.h.Exec(func() error { return contract.PayBackLoan(f.borrower.Address, loanID) }))
	if got := f.h.Balance(coretest.Currency, noteHolder.Address); got.Int64() != 110 {
		t.Fatalf("expected note holder paid 110, got %s", got)
	}
	if owner := f.h.OwnerOf(asset); owner != receiptHolder.Address {
		t.Fatalf("expected receipt holder to get collateral, got %s", owner.Hex())
	}
	if exists, _ := f.h.Node.PromissoryNotes().Exists(noteID); exists {
		t.Fatalf("expected promissory note burned")
	}
	if exists, _ := f.h.Node.ObligationReceipts().Exists(receiptID); exists {
		t.Fatalf("expected obligation receipt burned")
	}
}

func TestRenegotiateLoan(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	contract := f.contract(t, signing.AssetOffer)

	reneg := signing.Renegotiation{LoanID: loanID, NewDuration: 2 * day, NewMaxRepayment: big.NewInt(120), Fee: big.NewInt(5)}
	sig, err := signing.SignRenegotiation(f.lender.Key, reneg, big.NewInt(7), uint64(f.h.Now()+3600), contract.Verifier().Domain())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	renegotiate := func(caller ethcommon.Address) error {
		return f.h.Exec(func() error {
			return contract.RenegotiateLoan(caller, loanID, reneg.NewDuration, reneg.NewMaxRepayment, reneg.Fee, reneg.NewProRata, sig)
		})
	}
	if err := renegotiate(f.lender.Address); !errors.Is(err, loans.ErrOnlyBorrower) {
		t.Fatalf("expected ErrOnlyBorrower, got %v", err)
	}

	f.h.Approve(coretest.Currency, f.borrower.Address, contract.Address(), 5)
	f.h.Must(renegotiate(f.borrower.Address))
	terms, _ := contract.LoanTerms(loanID)
	if terms.Duration != 2*day || terms.MaxRepayment.Int64() != 120 {
		t.Fatalf("expected renegotiated terms, got %+v", terms)
	}
	if got := f.h.Balance(coretest.Currency, f.lender.Address); got.Int64() != 5 {
		t.Fatalf("expected lender to receive fee 5, got %s", got)
	}
	if err := renegotiate(f.borrower.Address); !errors.Is(err, loans.ErrLenderNonceInvalid) {
		t.Fatalf("expected replayed renegotiation to fail, got %v", err)
	}
}

func TestCancelLoanCommitment(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	contract := f.contract(t, signing.AssetOffer)
	f.h.Must(f.h.Exec(func() error { return contract.CancelLoanCommitment(f.lender.Address, big.NewInt(3)) }))

	offer := coretest.Offer(100, 110, 1)
	f.prepare(signing.AssetOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}, 100)
	sig := f.h.Sign(f.lender, signing.AssetOffer, offer, 3)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, loans.ErrLenderNonceInvalid) {
		t.Fatalf("expected cancelled nonce rejected, got %v", err)
	}
	if err := f.h.Exec(func() error { return contract.CancelLoanCommitment(f.lender.Address, big.NewInt(3)) }); !errors.Is(err, loans.ErrLenderNonceInvalid) {
		t.Fatalf("expected double cancel to fail, got %v", err)
	}
}

func TestRefinancingCapabilityIsRestricted(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	loanID := f.h.Originate(f.borrower, f.lender, signing.AssetOffer, coretest.Offer(100, 110, 1), 1, 1)
	contract := f.contract(t, signing.AssetOffer)
	err := f.h.Exec(func() error {
		_, err := contract.PayOffForRefinancing(f.borrower.Address, loanID)
		return err
	})
	if !errors.Is(err, loans.ErrNotRefinancer) {
		t.Fatalf("expected ErrNotRefinancer, got %v", err)
	}
}

func TestPausedLoansRejectMutations(t *testing.T) {
	f := newFixture(t)
	f.h.MintNFT(f.borrower.Address, 1)
	f.h.Must(f.h.Exec(func() error { return f.h.Node.Registry().Pause(f.h.Owner.Address, "loans") }))
	offer := coretest.Offer(100, 110, 1)
	f.prepare(signing.AssetOffer, escrow.Asset{Contract: coretest.Collection, TokenID: big.NewInt(1)}, 100)
	sig := f.h.Sign(f.lender, signing.AssetOffer, offer, 1)
	if _, err := f.accept(t, signing.AssetOffer, offer, sig, 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
