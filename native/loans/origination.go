package loans

import (
	"fmt"
	"math"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
	"nftlend/native/escrow"
	"nftlend/native/signing"
)

// origination describes who receives what when an offer is taken.
type origination struct {
	borrower ethcommon.Address
	// custodian currently holds the collateral and is the escrow lock owner.
	custodian ethcommon.Address
	// payee receives the lender's funds.
	payee ethcommon.Address
}

// AcceptOffer starts a loan from a lender-signed offer. caller is the
// borrower and pledges collateralID (ignored for asset offers when nil).
func (e *Engine) AcceptOffer(caller ethcommon.Address, offer signing.Offer, sig signing.Signature, collateralID *big.Int) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.originate(origination{borrower: caller, custodian: caller, payee: caller}, offer, sig, collateralID)
}

func (e *Engine) originate(o origination, offer signing.Offer, sig signing.Signature, requestedID *big.Int) (uint64, error) {
	collateralID := resolveCollateralID(e.offerType, offer, requestedID)
	if collateralID == nil || collateralID.Sign() < 0 || !e.predicate(offer, collateralID) {
		return 0, ErrCollateralMismatch
	}
	if !offer.AllowsBorrower(o.borrower) {
		return 0, ErrBorrowerNotAllowed
	}
	if err := e.checkTerms(offer, e.now()); err != nil {
		return 0, err
	}
	if err := e.checkPermitted(offer); err != nil {
		return 0, err
	}
	if err := e.consumeNonce(offer, sig); err != nil {
		return 0, err
	}
	valid, err := e.verifier.IsValidOfferSignature(offer, sig, e.offerType)
	if err != nil {
		return 0, err
	}
	if !valid {
		return 0, ErrInvalidLenderSignature
	}

	asset := escrow.Asset{Contract: offer.CollateralContract, TokenID: collateralID}
	lockID, err := e.escrow.Lock(e.address, asset, o.custodian)
	if err != nil {
		return 0, err
	}
	loanID, err := e.coordinator.RegisterLoan(e.address)
	if err != nil {
		return 0, err
	}
	terms := LoanTerms{
		OfferType:          e.offerType,
		Currency:           offer.Currency,
		Principal:          nativecommon.CloneBig(offer.Principal),
		MaxRepayment:       nativecommon.CloneBig(offer.MaxRepayment),
		CollateralContract: offer.CollateralContract,
		CollateralID:       collateralID,
		Lender:             sig.Signer,
		Borrower:           o.borrower,
		Start:              e.now(),
		Duration:           offer.Duration,
		ProRata:            offer.ProRata,
		OriginationFee:     nativecommon.CloneBig(offer.OriginationFee),
		AdminFeeBps:        e.params.AdminFeeBps,
		LockID:             lockID,
	}
	if err := e.state.KVPut(e.termsKey(loanID), terms); err != nil {
		return 0, err
	}
	net := new(big.Int).Sub(terms.Principal, terms.OriginationFee)
	if err := e.bank.TransferFrom(e.address, offer.Currency, sig.Signer, o.payee, net); err != nil {
		return 0, fmt.Errorf("loans: fund loan %d: %w", loanID, err)
	}
	e.emitter.Emit(loanEvent(EventTypeLoanStarted, e.address, loanID).
		With("offerType", string(e.offerType)).
		With("lender", terms.Lender.Hex()).
		With("borrower", terms.Borrower.Hex()).
		With("currency", terms.Currency.Hex()).
		With("principal", terms.Principal.String()).
		With("maxRepayment", terms.MaxRepayment.String()).
		With("collateral", asset.String()).
		With("duration", fmt.Sprintf("%d", terms.Duration)))
	return loanID, nil
}

// checkTerms validates offered terms for a loan starting at now.
func (e *Engine) checkTerms(offer signing.Offer, now uint64) error {
	if offer.Principal == nil || offer.Principal.Sign() <= 0 {
		return ErrInvalidPrincipal
	}
	if offer.MaxRepayment == nil || offer.MaxRepayment.Cmp(offer.Principal) < 0 {
		return ErrNegativeInterest
	}
	if offer.Duration == 0 {
		return ErrZeroDuration
	}
	if err := e.checkDuration(offer.Duration, now); err != nil {
		return err
	}
	fee := nativecommon.CloneBig(offer.OriginationFee)
	if fee.Sign() < 0 {
		return ErrInvalidFee
	}
	if fee.Cmp(offer.Principal) >= 0 {
		return ErrOriginationFeeTooHigh
	}
	return nil
}

func (e *Engine) checkPermitted(offer signing.Offer) error {
	ok, err := e.registry.IsPermittedCurrency(offer.Currency)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCurrencyNotPermitted, offer.Currency.Hex())
	}
	if _, ok, err := e.registry.PermittedCollateral(offer.CollateralContract); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrCollateralNotPermitted, offer.CollateralContract.Hex())
	}
	return nil
}

// consumeNonce either burns the signer's nonce or, for capped collection
// offers, meters cumulative principal against the cap.
func (e *Engine) consumeNonce(offer signing.Offer, sig signing.Signature) error {
	if sig.Nonce == nil || sig.Nonce.Sign() < 0 {
		return ErrLenderNonceInvalid
	}
	used, err := e.NonceUsed(sig.Signer, sig.Nonce)
	if err != nil {
		return err
	}
	if used {
		return ErrLenderNonceInvalid
	}
	if !tracksLiquidityCap(e.offerType, offer) {
		return e.state.KVPut(e.nonceKey(sig.Signer, sig.Nonce), true)
	}
	drawn, err := e.Drawn(sig.Signer, sig.Nonce)
	if err != nil {
		return err
	}
	drawn.Add(drawn, offer.Principal)
	if drawn.Cmp(offer.LiquidityCap) > 0 {
		return ErrLiquidityCapExceeded
	}
	return e.state.KVPut(e.drawnKey(sig.Signer, sig.Nonce), drawn)
}

// checkDuration bounds a duration counted from start. Without a configured
// maximum the maturity must still be representable.
func (e *Engine) checkDuration(duration, start uint64) error {
	if e.params.MaxLoanDuration > 0 && duration > e.params.MaxLoanDuration {
		return ErrLoanDurationExceedsMaximum
	}
	if duration > math.MaxUint64-start {
		return ErrLoanDurationExceedsMaximum
	}
	return nil
}
