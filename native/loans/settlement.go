package loans

import (
	"fmt"
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
	"nftlend/native/escrow"
	"nftlend/native/signing"
)

func collateralOf(terms *LoanTerms) escrow.Asset {
	return escrow.Asset{Contract: terms.CollateralContract, TokenID: nativecommon.CloneBig(terms.CollateralID)}
}

// PayBackLoan settles loanID with funds from caller. Anyone may pay; the
// collateral always goes to the current borrower.
func (e *Engine) PayBackLoan(caller ethcommon.Address, loanID uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return err
	}
	borrower, err := e.currentBorrower(loanID, terms)
	if err != nil {
		return err
	}
	_, err = e.settle(caller, loanID, terms, borrower)
	return err
}

// settle collects the payoff from payer, releases collateral to recipient and
// resolves the loan as repaid.
func (e *Engine) settle(payer ethcommon.Address, loanID uint64, terms *LoanTerms, recipient ethcommon.Address) (*big.Int, error) {
	now := e.now()
	if terms.Expired(now) {
		return nil, ErrLoanExpired
	}
	lender, err := e.currentLender(loanID, terms)
	if err != nil {
		return nil, err
	}
	payoff := terms.Payoff(now)
	interest := new(big.Int).Sub(payoff, terms.Principal)
	adminFee := nativecommon.MulBps(interest, terms.AdminFeeBps)
	if err := e.collect(payer, terms.Currency, lender, payoff, adminFee); err != nil {
		return nil, fmt.Errorf("loans: repay loan %d: %w", loanID, err)
	}
	if err := e.escrow.Release(e.address, terms.LockID, recipient); err != nil {
		return nil, err
	}
	if err := e.coordinator.ResolveLoan(e.address, loanID, true); err != nil {
		return nil, err
	}
	e.emitter.Emit(loanEvent(EventTypeLoanRepaid, e.address, loanID).
		With("payer", payer.Hex()).
		With("lender", lender.Hex()).
		With("collateralTo", recipient.Hex()).
		With("payoff", payoff.String()).
		With("adminFee", adminFee.String()))
	return payoff, nil
}

// collect pulls amount from payer, routing adminFee to the treasury and the
// rest to lender.
func (e *Engine) collect(payer, currency, lender ethcommon.Address, amount, adminFee *big.Int) error {
	if adminFee.Sign() > 0 && e.params.Treasury == (ethcommon.Address{}) {
		adminFee = new(big.Int)
	}
	toLender := new(big.Int).Sub(amount, adminFee)
	if toLender.Sign() > 0 {
		if err := e.bank.TransferFrom(e.address, currency, payer, lender, toLender); err != nil {
			return err
		}
	}
	if adminFee.Sign() > 0 {
		if err := e.bank.TransferFrom(e.address, currency, payer, e.params.Treasury, adminFee); err != nil {
			return err
		}
	}
	return nil
}

// LiquidateOverdueLoan hands the collateral of an expired loan to its
// current lender.
func (e *Engine) LiquidateOverdueLoan(caller ethcommon.Address, loanID uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return err
	}
	lender, err := e.currentLender(loanID, terms)
	if err != nil {
		return err
	}
	if caller != lender {
		return ErrOnlyLender
	}
	if !terms.Expired(e.now()) {
		return ErrLoanNotOverdue
	}
	if err := e.escrow.Release(e.address, terms.LockID, lender); err != nil {
		return err
	}
	if err := e.coordinator.ResolveLoan(e.address, loanID, false); err != nil {
		return err
	}
	e.emitter.Emit(loanEvent(EventTypeLoanLiquidated, e.address, loanID).
		With("lender", lender.Hex()).
		With("collateral", collateralOf(terms).String()))
	return nil
}

// RenegotiateLoan applies lender-signed revised terms. The borrower pays fee
// to the lender, less the admin share.
func (e *Engine) RenegotiateLoan(caller ethcommon.Address, loanID, newDuration uint64, newMaxRepayment, fee *big.Int, newProRata bool, sig signing.Signature) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return err
	}
	borrower, err := e.currentBorrower(loanID, terms)
	if err != nil {
		return err
	}
	if caller != borrower {
		return ErrOnlyBorrower
	}
	lender, err := e.currentLender(loanID, terms)
	if err != nil {
		return err
	}
	if sig.Signer != lender {
		return ErrInvalidLenderSignature
	}
	if newDuration == 0 {
		return ErrZeroDuration
	}
	if err := e.checkDuration(newDuration, terms.Start); err != nil {
		return err
	}
	if terms.Start+newDuration <= e.now() {
		return ErrRenegotiationElapsed
	}
	if newMaxRepayment == nil || newMaxRepayment.Cmp(terms.Principal) < 0 {
		return ErrNegativeInterest
	}
	fee = nativecommon.CloneBig(fee)
	if fee.Sign() < 0 {
		return ErrInvalidFee
	}
	if sig.Nonce == nil || sig.Nonce.Sign() < 0 {
		return ErrLenderNonceInvalid
	}
	if used, err := e.NonceUsed(sig.Signer, sig.Nonce); err != nil {
		return err
	} else if used {
		return ErrLenderNonceInvalid
	}
	valid, err := e.verifier.IsValidRenegotiationSignature(loanID, newDuration, newProRata, newMaxRepayment, fee, sig)
	if err != nil {
		return err
	}
	if !valid {
		return ErrInvalidLenderSignature
	}
	if err := e.state.KVPut(e.nonceKey(sig.Signer, sig.Nonce), true); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		adminFee := nativecommon.MulBps(fee, terms.AdminFeeBps)
		if err := e.collect(caller, terms.Currency, lender, fee, adminFee); err != nil {
			return fmt.Errorf("loans: renegotiation fee for loan %d: %w", loanID, err)
		}
	}
	terms.Duration = newDuration
	terms.MaxRepayment = new(big.Int).Set(newMaxRepayment)
	terms.ProRata = newProRata
	if err := e.state.KVPut(e.termsKey(loanID), terms); err != nil {
		return err
	}
	e.emitter.Emit(loanEvent(EventTypeLoanRenegotiated, e.address, loanID).
		With("duration", strconv.FormatUint(newDuration, 10)).
		With("maxRepayment", newMaxRepayment.String()).
		With("proRata", strconv.FormatBool(newProRata)).
		With("fee", fee.String()))
	return nil
}
