package routes

import (
	"errors"
	"net/http"

	"nftlend/core"
	"nftlend/native/accounts"
	"nftlend/native/bank"
	nativecommon "nftlend/native/common"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/liquidity"
	"nftlend/native/loans"
	"nftlend/native/nft"
	"nftlend/native/receipts"
	"nftlend/native/refinance"
	"nftlend/native/registry"
	"nftlend/native/signing"
)

// errorClass groups protocol errors that share an HTTP status.
type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusServiceUnavailable, "paused", []error{nativecommon.ErrModulePaused}},
	{http.StatusNotFound, "not_found", []error{
		coordinator.ErrLoanNotFound, loans.ErrLoanNotFound, receipts.ErrTokenNotFound,
		nft.ErrTokenNotFound, core.ErrUnknownOfferType, core.ErrUnknownContract,
		refinance.ErrUnknownLoanContract, accounts.ErrAccountNotDeployed, errIndexUnavailable,
	}},
	{http.StatusForbidden, "unauthorized", []error{
		registry.ErrNotOwner, registry.ErrNotPendingOwner,
		coordinator.ErrNotRegisteredLoanType, coordinator.ErrCallerNotLoanCreatorContract,
		escrow.ErrNotLoanContract, escrow.ErrNotLocker,
		receipts.ErrNotMinter, receipts.ErrNotOwner, nft.ErrNotAuthorized,
		loans.ErrOnlyLender, loans.ErrOnlyBorrower, loans.ErrNotRefinancer, loans.ErrBorrowerNotAllowed,
		refinance.ErrCallerNotBorrowerOfOldLoan,
	}},
	{http.StatusGone, "expired", []error{
		signing.ErrSignatureExpired, loans.ErrLoanExpired, loans.ErrRenegotiationElapsed,
		refinance.ErrLoanExpired,
	}},
	{http.StatusConflict, "state_conflict", []error{
		coordinator.ErrLoanStatusMustBeNew, coordinator.ErrPromissoryNoteAlreadyMinted,
		coordinator.ErrObligationReceiptAlreadyMinted, loans.ErrLoanAlreadyResolved,
		loans.ErrLoanNotOverdue, loans.ErrLenderNonceInvalid, loans.ErrLiquidityCapExceeded,
		refinance.ErrLoanNotActive, escrow.ErrAlreadyLocked, escrow.ErrNotLocked,
		escrow.ErrPersonalEscrowExists, escrow.ErrNoPersonalEscrow, escrow.ErrNotDeposited,
		receipts.ErrTokenExists, nft.ErrTokenExists, accounts.ErrAccountExists,
		registry.ErrOwnerAlreadyInitialised, registry.ErrLoanContractTaken,
		liquidity.ErrReentrantFlashLoan,
	}},
	{http.StatusUnprocessableEntity, "invalid", []error{
		loans.ErrInvalidLenderSignature, loans.ErrCollateralMismatch, loans.ErrCurrencyNotPermitted,
		loans.ErrCollateralNotPermitted, loans.ErrNegativeInterest, loans.ErrZeroDuration,
		loans.ErrLoanDurationExceedsMaximum, loans.ErrOriginationFeeTooHigh, loans.ErrInvalidPrincipal,
		loans.ErrInvalidFee, loans.ErrInvalidOfferType,
		refinance.ErrDenominationMismatch, refinance.ErrCollateralContractMismatch,
		bank.ErrInsufficientBalance, bank.ErrInsufficientAllowance, bank.ErrInvalidAmount, bank.ErrZeroAddress,
		liquidity.ErrInvalidAmount, liquidity.ErrInsufficientShares, liquidity.ErrInsufficientLiquidity,
		liquidity.ErrCurrencyNotPermitted, liquidity.ErrFlashLoanNotRepaid, liquidity.ErrInvalidFeeBps,
		registry.ErrArityMismatch, registry.ErrUnknownAssetType, registry.ErrInvalidAssetType,
		registry.ErrInvalidLoanType, registry.ErrZeroAddress, registry.ErrInvalidModule,
		escrow.ErrNoAdapter, escrow.ErrNotAssetOwner, escrow.ErrZeroRecipient,
		nft.ErrNotTokenOwner, nft.ErrInsufficientUnits, nft.ErrInvalidAmount, nft.ErrZeroAddress, nft.ErrNoSaleOffer,
		receipts.ErrZeroAddress, accounts.ErrInvalidThreshold, accounts.ErrDuplicateOwner,
		accounts.ErrZeroOwner, accounts.ErrTooManyOwners,
	}},
}

var errIndexUnavailable = errors.New("routes: event index not configured")

// badRequest marks client input that could not be decoded.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// classify maps err to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest, "bad_request"
	}
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, "internal"
}
