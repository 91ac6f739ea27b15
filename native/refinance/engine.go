package refinance

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/liquidity"
	"nftlend/native/loans"
	"nftlend/native/signing"
)

var (
	ErrNilState                   = errors.New("refinance: state not configured")
	ErrNotWired                   = errors.New("refinance: collaborators not configured")
	ErrUnknownLoanContract        = errors.New("refinance: unknown loan contract")
	ErrCallerNotBorrowerOfOldLoan = errors.New("refinance: caller is not borrower of old loan")
	ErrLoanNotActive              = errors.New("refinance: old loan is not active")
	ErrLoanExpired                = errors.New("refinance: loan is expired")
	ErrDenominationMismatch       = errors.New("refinance: denomination mismatch")
	ErrCollateralContractMismatch = errors.New("refinance: new offer is for a different collateral contract")
)

const moduleName = "refinance"

const EventTypeRefinanced = "refinance.completed"

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// LoanContract is the refinancing capability of an origination contract.
type LoanContract interface {
	Address() ethcommon.Address
	LoanTerms(loanID uint64) (*loans.LoanTerms, error)
	CurrentBorrower(loanID uint64) (ethcommon.Address, error)
	PayoffAmount(loanID uint64) (*big.Int, error)
	PayOffForRefinancing(caller ethcommon.Address, loanID uint64) (*big.Int, error)
	OriginateForRefinancing(caller, borrower ethcommon.Address, offer signing.Offer, sig signing.Signature, collateralID *big.Int) (uint64, error)
}

// Coordinator is the read-only loan record view.
type Coordinator interface {
	GetLoanData(loanID uint64) (coordinator.LoanData, error)
}

// Pool lends the transient liquidity that repays the old loan.
type Pool interface {
	Address() ethcommon.Address
	FlashFee(currency ethcommon.Address, amount *big.Int) *big.Int
	FlashLoan(initiator ethcommon.Address, borrower liquidity.FlashBorrower, currency ethcommon.Address, amount *big.Int, data []byte) (*big.Int, error)
}

// Escrow lets the refinancer re-pledge collateral it briefly holds.
type Escrow interface {
	GrantCustody(caller ethcommon.Address, asset escrow.Asset) error
}

// Bank moves currency held by the refinancer.
type Bank interface {
	Approve(currency, owner, spender ethcommon.Address, amount *big.Int) error
	Transfer(currency, from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, currency, owner, to ethcommon.Address, amount *big.Int) error
}

// Request asks to replace an active loan with a new one funded by Offer.
type Request struct {
	OldLoanContract ethcommon.Address
	OldLoanID       uint64
	NewLoanContract ethcommon.Address
	Offer           signing.Offer
	Signature       signing.Signature
}

// Result reports the outcome of one refinancing.
type Result struct {
	NewLoanID uint64
	Payoff    *big.Int
	FlashFee  *big.Int
	// Deficit was charged to the borrower; Surplus was paid to the borrower.
	Deficit *big.Int
	Surplus *big.Int
}

// Engine swaps an active loan for a new one in a single all-or-nothing step.
type Engine struct {
	address     ethcommon.Address
	state       engineState
	contracts   map[ethcommon.Address]LoanContract
	coordinator Coordinator
	pool        Pool
	escrow      Escrow
	bank        Bank
	pauses      nativecommon.PauseView
	emitter     events.Emitter
	nowFn       func() int64
}

func NewEngine(address ethcommon.Address) *Engine {
	return &Engine{
		address:   address,
		contracts: make(map[ethcommon.Address]LoanContract),
		emitter:   events.NoopEmitter{},
	}
}

func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetCoordinator(c Coordinator) { e.coordinator = c }

func (e *Engine) SetPool(p Pool) { e.pool = p }

func (e *Engine) SetEscrow(esc Escrow) { e.escrow = esc }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc sets the clock used for the expiry check.
func (e *Engine) SetNowFunc(now func() int64) { e.nowFn = now }

// RegisterLoanContract makes a loan contract eligible as old or new side.
func (e *Engine) RegisterLoanContract(c LoanContract) {
	e.contracts[c.Address()] = c
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.coordinator == nil || e.pool == nil || e.escrow == nil || e.bank == nil || e.nowFn == nil {
		return ErrNotWired
	}
	return nil
}

func (e *Engine) contract(addr ethcommon.Address) (LoanContract, error) {
	c, ok := e.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLoanContract, addr.Hex())
	}
	return c, nil
}

// Quote previews the payoff and flash fee a refinancing of the loan would
// settle right now.
func (e *Engine) Quote(oldContract ethcommon.Address, loanID uint64) (payoff, flashFee *big.Int, err error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	c, err := e.contract(oldContract)
	if err != nil {
		return nil, nil, err
	}
	terms, err := c.LoanTerms(loanID)
	if err != nil {
		return nil, nil, err
	}
	payoff, err = c.PayoffAmount(loanID)
	if err != nil {
		return nil, nil, err
	}
	return payoff, e.pool.FlashFee(terms.Currency, payoff), nil
}

// Refinance repays the old loan with flash liquidity, re-locks its collateral
// under the new offer and settles the difference with the borrower. The new
// lender's origination fee is withheld from the proceeds, so the borrower is
// charged payoff + flashFee - (principal - originationFee) when that is
// positive and paid the negation otherwise. Any failure rolls every change
// back.
func (e *Engine) Refinance(caller ethcommon.Address, req Request) (res *Result, err error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	snapshot := e.state.Snapshot()
	defer func() {
		if err != nil {
			e.state.RevertToSnapshot(snapshot)
			res = nil
		}
	}()

	oldContract, err := e.contract(req.OldLoanContract)
	if err != nil {
		return nil, err
	}
	newContract, err := e.contract(req.NewLoanContract)
	if err != nil {
		return nil, err
	}

	data, err := e.coordinator.GetLoanData(req.OldLoanID)
	if err != nil {
		return nil, err
	}
	if data.LoanContract != oldContract.Address() {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotActive, req.OldLoanID)
	}
	borrower, err := oldContract.CurrentBorrower(req.OldLoanID)
	if err != nil {
		return nil, err
	}
	if caller != borrower {
		return nil, ErrCallerNotBorrowerOfOldLoan
	}
	if data.Status != coordinator.StatusNew {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotActive, req.OldLoanID)
	}
	terms, err := oldContract.LoanTerms(req.OldLoanID)
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	if now < 0 || terms.Expired(uint64(now)) {
		return nil, ErrLoanExpired
	}
	if req.Offer.Currency != terms.Currency {
		return nil, ErrDenominationMismatch
	}
	if req.Offer.CollateralContract != terms.CollateralContract {
		return nil, ErrCollateralContractMismatch
	}

	payoff, err := oldContract.PayoffAmount(req.OldLoanID)
	if err != nil {
		return nil, err
	}
	s := &session{
		engine:      e,
		borrower:    borrower,
		oldContract: oldContract,
		newContract: newContract,
		terms:       terms,
		req:         req,
	}
	fee, err := e.pool.FlashLoan(caller, s, terms.Currency, payoff, nil)
	if err != nil {
		return nil, err
	}

	res = &Result{
		NewLoanID: s.newLoanID,
		Payoff:    s.payoff,
		FlashFee:  fee,
		Deficit:   s.deficit,
		Surplus:   s.surplus,
	}
	e.emitter.Emit(events.New(EventTypeRefinanced).
		With("borrower", borrower.Hex()).
		With("oldContract", oldContract.Address().Hex()).
		With("oldLoanId", strconv.FormatUint(req.OldLoanID, 10)).
		With("newContract", newContract.Address().Hex()).
		With("newLoanId", strconv.FormatUint(s.newLoanID, 10)).
		With("payoff", s.payoff.String()).
		With("flashFee", fee.String()).
		With("deficit", s.deficit.String()).
		With("surplus", s.surplus.String()))
	return res, nil
}

// session carries one refinancing through the flash loan callback.
type session struct {
	engine      *Engine
	borrower    ethcommon.Address
	oldContract LoanContract
	newContract LoanContract
	terms       *loans.LoanTerms
	req         Request

	payoff    *big.Int
	newLoanID uint64
	deficit   *big.Int
	surplus   *big.Int
}

func (s *session) Address() ethcommon.Address { return s.engine.address }

func (s *session) OnFlashLoan(_ ethcommon.Address, currency ethcommon.Address, amount, fee *big.Int, _ []byte) error {
	e := s.engine
	self := e.address

	if err := e.bank.Approve(currency, self, s.oldContract.Address(), amount); err != nil {
		return err
	}
	payoff, err := s.oldContract.PayOffForRefinancing(self, s.req.OldLoanID)
	if err != nil {
		return err
	}
	s.payoff = payoff

	asset := escrow.Asset{Contract: s.terms.CollateralContract, TokenID: nativecommon.CloneBig(s.terms.CollateralID)}
	if err := e.escrow.GrantCustody(self, asset); err != nil {
		return err
	}
	newLoanID, err := s.newContract.OriginateForRefinancing(self, s.borrower, s.req.Offer, s.req.Signature, asset.TokenID)
	if err != nil {
		return err
	}
	s.newLoanID = newLoanID

	// The new lender funds principal minus its origination fee.
	proceeds := new(big.Int).Sub(nativecommon.CloneBig(s.req.Offer.Principal), nativecommon.CloneBig(s.req.Offer.OriginationFee))
	owed := new(big.Int).Add(amount, fee)
	s.deficit, s.surplus = new(big.Int), new(big.Int)
	switch proceeds.Cmp(owed) {
	case -1:
		s.deficit.Sub(owed, proceeds)
		if err := e.bank.TransferFrom(self, currency, s.borrower, self, s.deficit); err != nil {
			return fmt.Errorf("refinance: collect deficit %s: %w", s.deficit, err)
		}
	case 1:
		s.surplus.Sub(proceeds, owed)
		if err := e.bank.Transfer(currency, self, s.borrower, s.surplus); err != nil {
			return err
		}
	}
	return e.bank.Approve(currency, self, e.pool.Address(), owed)
}
