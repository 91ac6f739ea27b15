package coordinator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	"nftlend/native/receipts"
)

var (
	ErrNilState                       = errors.New("coordinator: state not configured")
	ErrNotRegisteredLoanType          = errors.New("coordinator: caller is not a registered loan type")
	ErrCallerNotLoanCreatorContract   = errors.New("coordinator: caller is not the loan creator contract")
	ErrLoanStatusMustBeNew            = errors.New("coordinator: loan status must be NEW")
	ErrLoanNotFound                   = errors.New("coordinator: loan does not exist")
	ErrPromissoryNoteAlreadyMinted    = errors.New("coordinator: promissory note already minted")
	ErrObligationReceiptAlreadyMinted = errors.New("coordinator: obligation receipt already minted")
)

const (
	EventTypeLoanRegistered = "coordinator.loan.registered"
	EventTypeLoanResolved   = "coordinator.loan.resolved"
	EventTypeReceiptMinted  = "coordinator.receipt.minted"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// LoanTypeRegistry answers whether an address is an authorised loan contract.
type LoanTypeRegistry interface {
	IsLoanContract(addr ethcommon.Address) (bool, error)
}

// ReceiptCollection is one of the two receipt token contracts.
type ReceiptCollection interface {
	Mint(caller, owner ethcommon.Address, id uint64, binding receipts.Binding) error
	Burn(caller ethcommon.Address, id uint64) error
	Exists(id uint64) (bool, error)
	OwnerOf(id uint64) (ethcommon.Address, error)
}

// Engine is the single writer of loan records. Loan contracts hold only a
// loan id and authenticate against it through IsValidLoanID.
type Engine struct {
	address    ethcommon.Address
	state      engineState
	loanTypes  LoanTypeRegistry
	promissory ReceiptCollection
	obligation ReceiptCollection
	emitter    events.Emitter
}

func NewEngine(address ethcommon.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the coordinator identity, the minter of both receipt collections.
func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetLoanTypes(registry LoanTypeRegistry) { e.loanTypes = registry }

// SetReceipts wires the promissory note and obligation receipt collections.
func (e *Engine) SetReceipts(promissory, obligation ReceiptCollection) {
	e.promissory = promissory
	e.obligation = obligation
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

var totalKey = []byte("coordinator/total")

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("coordinator/loan/%d", id))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.loanTypes == nil || e.promissory == nil || e.obligation == nil {
		return ErrNilState
	}
	return nil
}

// TotalNumLoans returns how many loans were ever registered.
func (e *Engine) TotalNumLoans() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	var total uint64
	if _, err := e.state.KVGet(totalKey, &total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetLoanData returns the record of a registered loan.
func (e *Engine) GetLoanData(loanID uint64) (LoanData, error) {
	if e == nil || e.state == nil {
		return LoanData{}, ErrNilState
	}
	var data LoanData
	ok, err := e.state.KVGet(loanKey(loanID), &data)
	if err != nil {
		return LoanData{}, err
	}
	if !ok {
		return LoanData{}, ErrLoanNotFound
	}
	return data, nil
}

// IsValidLoanID reports whether contract registered loanID.
func (e *Engine) IsValidLoanID(loanID uint64, contract ethcommon.Address) bool {
	data, err := e.GetLoanData(loanID)
	if err != nil {
		return false
	}
	return data.LoanContract == contract
}

// RegisterLoan allocates the next loan id for the calling loan contract.
func (e *Engine) RegisterLoan(caller ethcommon.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	allowed, err := e.loanTypes.IsLoanContract(caller)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, ErrNotRegisteredLoanType
	}
	total, err := e.TotalNumLoans()
	if err != nil {
		return 0, err
	}
	loanID := total + 1
	if err := e.state.KVPut(totalKey, loanID); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(loanKey(loanID), LoanData{Status: StatusNew, LoanContract: caller}); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.New(EventTypeLoanRegistered).
		With("loanId", strconv.FormatUint(loanID, 10)).
		With("loanContract", caller.Hex()))
	return loanID, nil
}

// MintPromissoryNote issues the lender's receipt for a loan.
func (e *Engine) MintPromissoryNote(caller ethcommon.Address, loanID uint64, lender ethcommon.Address) (uint64, error) {
	return e.mintReceipt(caller, loanID, lender, e.promissory, receipts.PromissoryNote, ErrPromissoryNoteAlreadyMinted)
}

// MintObligationReceipt issues the borrower's receipt for a loan.
func (e *Engine) MintObligationReceipt(caller ethcommon.Address, loanID uint64, borrower ethcommon.Address) (uint64, error) {
	return e.mintReceipt(caller, loanID, borrower, e.obligation, receipts.ObligationReceipt, ErrObligationReceiptAlreadyMinted)
}

func (e *Engine) mintReceipt(caller ethcommon.Address, loanID uint64, owner ethcommon.Address, collection ReceiptCollection, role string, alreadyMinted error) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	data, err := e.GetLoanData(loanID)
	if err != nil {
		return 0, err
	}
	if data.LoanContract != caller {
		return 0, ErrCallerNotLoanCreatorContract
	}
	if data.Status != StatusNew {
		return 0, ErrLoanStatusMustBeNew
	}
	if data.ReceiptID == 0 {
		id, err := e.allocateReceiptID(loanID)
		if err != nil {
			return 0, err
		}
		data.ReceiptID = id
		if err := e.state.KVPut(loanKey(loanID), data); err != nil {
			return 0, err
		}
	}
	exists, err := collection.Exists(data.ReceiptID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, alreadyMinted
	}
	binding := receipts.Binding{Coordinator: e.address, LoanID: loanID}
	if err := collection.Mint(e.address, owner, data.ReceiptID, binding); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.New(EventTypeReceiptMinted).
		With("loanId", strconv.FormatUint(loanID, 10)).
		With("receiptId", strconv.FormatUint(data.ReceiptID, 10)).
		With("role", role).
		With("owner", owner.Hex()))
	return data.ReceiptID, nil
}

// allocateReceiptID derives the shared receipt id from the coordinator
// address and loan id, stepping past ids already in use.
func (e *Engine) allocateReceiptID(loanID uint64) (uint64, error) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], loanID)
	digest := ethcrypto.Keccak256(e.address.Bytes(), raw[:])
	id := binary.BigEndian.Uint64(digest[:8])
	for {
		if id == 0 {
			id = 1
		}
		taken, err := e.receiptInUse(id)
		if err != nil {
			return 0, err
		}
		if !taken {
			return id, nil
		}
		id++
	}
}

func (e *Engine) receiptInUse(id uint64) (bool, error) {
	for _, collection := range []ReceiptCollection{e.promissory, e.obligation} {
		exists, err := collection.Exists(id)
		if err != nil || exists {
			return exists, err
		}
	}
	return false, nil
}

// ResolveLoan moves a NEW loan to REPAID or LIQUIDATED and burns whichever
// receipts were minted for it.
func (e *Engine) ResolveLoan(caller ethcommon.Address, loanID uint64, repaid bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	data, err := e.GetLoanData(loanID)
	if err != nil {
		return err
	}
	if data.Status != StatusNew {
		return ErrLoanStatusMustBeNew
	}
	if data.LoanContract != caller {
		return ErrCallerNotLoanCreatorContract
	}
	if repaid {
		data.Status = StatusRepaid
	} else {
		data.Status = StatusLiquidated
	}
	if err := e.state.KVPut(loanKey(loanID), data); err != nil {
		return err
	}
	if data.ReceiptID != 0 {
		for _, collection := range []ReceiptCollection{e.promissory, e.obligation} {
			exists, err := collection.Exists(data.ReceiptID)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := collection.Burn(e.address, data.ReceiptID); err != nil {
				return err
			}
		}
	}
	e.emitter.Emit(events.New(EventTypeLoanResolved).
		With("loanId", strconv.FormatUint(loanID, 10)).
		With("loanContract", caller.Hex()).
		With("status", data.Status.String()))
	return nil
}

// PromissoryNoteOwner returns the holder of a loan's promissory note, if minted.
func (e *Engine) PromissoryNoteOwner(loanID uint64) (ethcommon.Address, bool, error) {
	return e.receiptOwner(loanID, e.promissory)
}

// ObligationReceiptOwner returns the holder of a loan's obligation receipt, if minted.
func (e *Engine) ObligationReceiptOwner(loanID uint64) (ethcommon.Address, bool, error) {
	return e.receiptOwner(loanID, e.obligation)
}

func (e *Engine) receiptOwner(loanID uint64, collection ReceiptCollection) (ethcommon.Address, bool, error) {
	if err := e.ready(); err != nil {
		return ethcommon.Address{}, false, err
	}
	data, err := e.GetLoanData(loanID)
	if err != nil {
		return ethcommon.Address{}, false, err
	}
	if data.ReceiptID == 0 {
		return ethcommon.Address{}, false, nil
	}
	exists, err := collection.Exists(data.ReceiptID)
	if err != nil || !exists {
		return ethcommon.Address{}, false, err
	}
	owner, err := collection.OwnerOf(data.ReceiptID)
	if err != nil {
		return ethcommon.Address{}, false, err
	}
	return owner, true, nil
}
