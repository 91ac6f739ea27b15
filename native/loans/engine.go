package loans

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/signing"
)

var (
	ErrNilState                   = errors.New("loans: state not configured")
	ErrNotWired                   = errors.New("loans: collaborators not configured")
	ErrInvalidLenderSignature     = errors.New("loans: invalid lender signature")
	ErrLenderNonceInvalid         = errors.New("loans: lender nonce invalid")
	ErrLiquidityCapExceeded       = errors.New("loans: liquidity cap exceeded")
	ErrCollateralMismatch         = errors.New("loans: collateral does not satisfy offer")
	ErrBorrowerNotAllowed         = errors.New("loans: borrower not allowed by offer")
	ErrCurrencyNotPermitted       = errors.New("loans: currency not permitted")
	ErrCollateralNotPermitted     = errors.New("loans: collateral not permitted")
	ErrNegativeInterest           = errors.New("loans: maximum repayment below principal")
	ErrZeroDuration               = errors.New("loans: loan duration cannot be zero")
	ErrLoanDurationExceedsMaximum = errors.New("loans: loan duration exceeds maximum")
	ErrOriginationFeeTooHigh      = errors.New("loans: origination fee must be below principal")
	ErrInvalidPrincipal           = errors.New("loans: principal must be positive")
	ErrInvalidFee                 = errors.New("loans: fee must not be negative")
	ErrLoanNotFound               = errors.New("loans: loan not found")
	ErrLoanAlreadyResolved        = errors.New("loans: loan already repaid or liquidated")
	ErrLoanExpired                = errors.New("loans: loan is expired")
	ErrLoanNotOverdue             = errors.New("loans: loan is not overdue yet")
	ErrOnlyLender                 = errors.New("loans: only the lender may call")
	ErrOnlyBorrower               = errors.New("loans: only the borrower may call")
	ErrNotRefinancer              = errors.New("loans: caller is not the refinancer")
	ErrRenegotiationElapsed       = errors.New("loans: renegotiated duration already elapsed")
	ErrInvalidOfferType           = errors.New("loans: invalid offer type")
)

const moduleName = "loans"

const (
	EventTypeLoanStarted         = "loans.started"
	EventTypeLoanRepaid          = "loans.repaid"
	EventTypeLoanLiquidated      = "loans.liquidated"
	EventTypeLoanRenegotiated    = "loans.renegotiated"
	EventTypeCommitmentCancelled = "loans.commitment.cancelled"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry is the permitted-asset view consulted at origination.
type Registry interface {
	IsPermittedCurrency(currency ethcommon.Address) (bool, error)
	PermittedCollateral(contract ethcommon.Address) (string, bool, error)
}

// Escrow holds collateral while loans are active.
type Escrow interface {
	Lock(caller ethcommon.Address, asset escrow.Asset, owner ethcommon.Address) (uint64, error)
	Release(caller ethcommon.Address, lockID uint64, to ethcommon.Address) error
}

// Coordinator is the loan lifecycle surface a loan contract drives.
type Coordinator interface {
	RegisterLoan(caller ethcommon.Address) (uint64, error)
	MintPromissoryNote(caller ethcommon.Address, loanID uint64, lender ethcommon.Address) (uint64, error)
	MintObligationReceipt(caller ethcommon.Address, loanID uint64, borrower ethcommon.Address) (uint64, error)
	ResolveLoan(caller ethcommon.Address, loanID uint64, repaid bool) error
	GetLoanData(loanID uint64) (coordinator.LoanData, error)
	PromissoryNoteOwner(loanID uint64) (ethcommon.Address, bool, error)
	ObligationReceiptOwner(loanID uint64) (ethcommon.Address, bool, error)
}

// Bank moves loan currency. The engine only spends allowances granted to its
// own address.
type Bank interface {
	TransferFrom(spender, currency, owner, to ethcommon.Address, amount *big.Int) error
}

// Engine originates and settles loans for one offer taxonomy.
type Engine struct {
	address     ethcommon.Address
	offerType   signing.OfferType
	predicate   collateralPredicate
	verifier    *signing.Verifier
	state       engineState
	registry    Registry
	escrow      Escrow
	coordinator Coordinator
	bank        Bank
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	nowFn       func() int64
	params      Params
	refinancer  ethcommon.Address
}

// NewEngine creates the loan contract at address serving offerType. Offers
// are verified against the (address, chainID) domain.
func NewEngine(address ethcommon.Address, offerType signing.OfferType, chainID *big.Int) (*Engine, error) {
	predicate, ok := predicates[offerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOfferType, offerType)
	}
	now := func() int64 { return time.Now().Unix() }
	verifier := signing.NewVerifier(address, chainID)
	verifier.SetNowFunc(now)
	return &Engine{
		address:   address,
		offerType: offerType,
		predicate: predicate,
		verifier:  verifier,
		emitter:   events.NoopEmitter{},
		nowFn:     now,
	}, nil
}

func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) OfferType() signing.OfferType { return e.offerType }

// Verifier exposes the signature domain used by this contract.
func (e *Engine) Verifier() *signing.Verifier { return e.verifier }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetRegistry(r Registry) { e.registry = r }

func (e *Engine) SetEscrow(esc Escrow) { e.escrow = esc }

func (e *Engine) SetCoordinator(c Coordinator) { e.coordinator = c }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetAccounts installs the programmatic-account resolver used for lenders
// that are not plain keys.
func (e *Engine) SetAccounts(r signing.AccountResolver) { e.verifier.SetAccounts(r) }

func (e *Engine) SetParams(p Params) { e.params = p }

func (e *Engine) Params() Params { return e.params }

// SetRefinancer names the only address allowed to use the refinancing
// capability.
func (e *Engine) SetRefinancer(addr ethcommon.Address) { e.refinancer = addr }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		return
	}
	e.nowFn = now
	e.verifier.SetNowFunc(now)
}

func (e *Engine) prefix() string {
	return "loans/" + strings.ToLower(string(e.offerType))
}

func (e *Engine) termsKey(loanID uint64) []byte {
	return []byte(fmt.Sprintf("%s/terms/%d", e.prefix(), loanID))
}

func (e *Engine) nonceKey(user ethcommon.Address, nonce *big.Int) []byte {
	return []byte(fmt.Sprintf("%s/nonce/%s/%s", e.prefix(), user.Hex(), nonce.String()))
}

func (e *Engine) drawnKey(user ethcommon.Address, nonce *big.Int) []byte {
	return []byte(fmt.Sprintf("%s/drawn/%s/%s", e.prefix(), user.Hex(), nonce.String()))
}

func (e *Engine) now() uint64 {
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.registry == nil || e.escrow == nil || e.coordinator == nil || e.bank == nil {
		return ErrNotWired
	}
	return nil
}

// LoanTerms returns the stored terms of loanID.
func (e *Engine) LoanTerms(loanID uint64) (*LoanTerms, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	var terms LoanTerms
	ok, err := e.state.KVGet(e.termsKey(loanID), &terms)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}
	return &terms, nil
}

// PayoffAmount is what settles loanID right now.
func (e *Engine) PayoffAmount(loanID uint64) (*big.Int, error) {
	terms, err := e.LoanTerms(loanID)
	if err != nil {
		return nil, err
	}
	return terms.Payoff(e.now()), nil
}

// CurrentLender is the promissory note holder, or the original lender when
// no note was minted.
func (e *Engine) CurrentLender(loanID uint64) (ethcommon.Address, error) {
	terms, err := e.LoanTerms(loanID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return e.currentLender(loanID, terms)
}

// CurrentBorrower is the obligation receipt holder, or the original borrower
// when no receipt was minted.
func (e *Engine) CurrentBorrower(loanID uint64) (ethcommon.Address, error) {
	terms, err := e.LoanTerms(loanID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return e.currentBorrower(loanID, terms)
}

func (e *Engine) currentLender(loanID uint64, terms *LoanTerms) (ethcommon.Address, error) {
	if e.coordinator == nil {
		return terms.Lender, nil
	}
	owner, ok, err := e.coordinator.PromissoryNoteOwner(loanID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if ok {
		return owner, nil
	}
	return terms.Lender, nil
}

func (e *Engine) currentBorrower(loanID uint64, terms *LoanTerms) (ethcommon.Address, error) {
	if e.coordinator == nil {
		return terms.Borrower, nil
	}
	owner, ok, err := e.coordinator.ObligationReceiptOwner(loanID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if ok {
		return owner, nil
	}
	return terms.Borrower, nil
}

// activeLoan loads terms for a loan this contract created that is still NEW.
func (e *Engine) activeLoan(loanID uint64) (*LoanTerms, error) {
	data, err := e.coordinator.GetLoanData(loanID)
	if err != nil {
		if errors.Is(err, coordinator.ErrLoanNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
		}
		return nil, err
	}
	if data.LoanContract != e.address {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}
	if data.Status != coordinator.StatusNew {
		return nil, ErrLoanAlreadyResolved
	}
	return e.LoanTerms(loanID)
}

// NonceUsed reports whether user's nonce was consumed or cancelled.
func (e *Engine) NonceUsed(user ethcommon.Address, nonce *big.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if nonce == nil {
		return false, nil
	}
	var used bool
	ok, err := e.state.KVGet(e.nonceKey(user, nonce), &used)
	if err != nil {
		return false, err
	}
	return ok && used, nil
}

// Drawn is the principal already lent against a capped collection offer.
func (e *Engine) Drawn(user ethcommon.Address, nonce *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	drawn := new(big.Int)
	if nonce == nil {
		return drawn, nil
	}
	if _, err := e.state.KVGet(e.drawnKey(user, nonce), drawn); err != nil {
		return nil, err
	}
	return drawn, nil
}

// CancelLoanCommitment invalidates one of the caller's signed nonces.
func (e *Engine) CancelLoanCommitment(caller ethcommon.Address, nonce *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if nonce == nil || nonce.Sign() < 0 {
		return ErrLenderNonceInvalid
	}
	used, err := e.NonceUsed(caller, nonce)
	if err != nil {
		return err
	}
	if used {
		return ErrLenderNonceInvalid
	}
	if err := e.state.KVPut(e.nonceKey(caller, nonce), true); err != nil {
		return err
	}
	e.emitter.Emit(events.New(EventTypeCommitmentCancelled).
		With("contract", e.address.Hex()).
		With("user", caller.Hex()).
		With("nonce", nonce.String()))
	return nil
}

// MintPromissoryNote tokenises the lender position. Only the original lender
// may mint it.
func (e *Engine) MintPromissoryNote(caller ethcommon.Address, loanID uint64) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.ready(); err != nil {
		return 0, err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return 0, err
	}
	if caller != terms.Lender {
		return 0, ErrOnlyLender
	}
	return e.coordinator.MintPromissoryNote(e.address, loanID, caller)
}

// MintObligationReceipt tokenises the borrower position. Only the original
// borrower may mint it.
func (e *Engine) MintObligationReceipt(caller ethcommon.Address, loanID uint64) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.ready(); err != nil {
		return 0, err
	}
	terms, err := e.activeLoan(loanID)
	if err != nil {
		return 0, err
	}
	if caller != terms.Borrower {
		return 0, ErrOnlyBorrower
	}
	return e.coordinator.MintObligationReceipt(e.address, loanID, caller)
}

func loanEvent(eventType string, contract ethcommon.Address, loanID uint64) *events.Event {
	return events.New(eventType).
		With("contract", contract.Hex()).
		With("loanId", strconv.FormatUint(loanID, 10))
}
