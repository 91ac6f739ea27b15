package loans

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
	"nftlend/native/signing"
)

func (e *Engine) onlyRefinancer(caller ethcommon.Address) error {
	if e.refinancer == (ethcommon.Address{}) || caller != e.refinancer {
		return ErrNotRefinancer
	}
	return nil
}

// PayOffForRefinancing repays loanID with the refinancer's funds and releases
// the collateral to the refinancer for re-pledging. It returns the payoff.
func (e *Engine) PayOffForRefinancing(caller ethcommon.Address, loanID uint64) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.onlyRefinancer(caller); err != nil {
		return nil, err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return nil, err
	}
	return e.settle(caller, loanID, terms, caller)
}

// OriginateForRefinancing starts a loan on behalf of borrower while the
// refinancer holds the collateral. Lender funds go to the refinancer and both
// receipts are minted: the obligation receipt to borrower and the promissory
// note to the lender.
func (e *Engine) OriginateForRefinancing(caller, borrower ethcommon.Address, offer signing.Offer, sig signing.Signature, collateralID *big.Int) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.onlyRefinancer(caller); err != nil {
		return 0, err
	}
	loanID, err := e.originate(origination{borrower: borrower, custodian: caller, payee: caller}, offer, sig, collateralID)
	if err != nil {
		return 0, err
	}
	if _, err := e.coordinator.MintObligationReceipt(e.address, loanID, borrower); err != nil {
		return 0, err
	}
	if _, err := e.coordinator.MintPromissoryNote(e.address, loanID, sig.Signer); err != nil {
		return 0, err
	}
	return loanID, nil
}
