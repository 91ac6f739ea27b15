package receipts

import (
	"errors"
	"fmt"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

var (
	ErrNilState      = errors.New("receipts: state not configured")
	ErrNotMinter     = errors.New("receipts: caller is not the minter")
	ErrTokenExists   = errors.New("receipts: token already minted")
	ErrTokenNotFound = errors.New("receipts: token does not exist")
	ErrNotOwner      = errors.New("receipts: caller is not the token owner")
	ErrZeroAddress   = errors.New("receipts: zero address")
)

const (
	PromissoryNote    = "promissory-note"
	ObligationReceipt = "obligation-receipt"

	EventTypeMinted      = "receipts.minted"
	EventTypeBurned      = "receipts.burned"
	EventTypeTransferred = "receipts.transferred"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Binding ties a receipt to the loan it represents.
type Binding struct {
	Coordinator ethcommon.Address
	LoanID      uint64
}

type token struct {
	Owner   ethcommon.Address
	Binding Binding
}

// Engine is a transferable non-fungible receipt collection. Only the minter
// may create or destroy tokens.
type Engine struct {
	name    string
	minter  ethcommon.Address
	state   engineState
	emitter events.Emitter
}

func NewEngine(name string, minter ethcommon.Address) *Engine {
	return &Engine{name: name, minter: minter, emitter: events.NoopEmitter{}}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) tokenKey(id uint64) []byte {
	return []byte(fmt.Sprintf("receipts/%s/%d", e.name, id))
}

func (e *Engine) load(id uint64) (*token, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	var tok token
	ok, err := e.state.KVGet(e.tokenKey(id), &tok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &tok, nil
}

func (e *Engine) emit(eventType string, id uint64, from, to ethcommon.Address) {
	e.emitter.Emit(events.New(eventType).
		With("collection", e.name).
		With("receiptId", strconv.FormatUint(id, 10)).
		With("from", from.Hex()).
		With("to", to.Hex()))
}

// Mint issues receipt id to owner.
func (e *Engine) Mint(caller, owner ethcommon.Address, id uint64, binding Binding) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.minter {
		return ErrNotMinter
	}
	if owner == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	exists, err := e.Exists(id)
	if err != nil {
		return err
	}
	if exists {
		return ErrTokenExists
	}
	if err := e.state.KVPut(e.tokenKey(id), token{Owner: owner, Binding: binding}); err != nil {
		return err
	}
	e.emit(EventTypeMinted, id, ethcommon.Address{}, owner)
	return nil
}

// Burn destroys receipt id.
func (e *Engine) Burn(caller ethcommon.Address, id uint64) error {
	if caller != e.minter {
		return ErrNotMinter
	}
	tok, err := e.load(id)
	if err != nil {
		return err
	}
	if err := e.state.KVDelete(e.tokenKey(id)); err != nil {
		return err
	}
	e.emit(EventTypeBurned, id, tok.Owner, ethcommon.Address{})
	return nil
}

// Transfer moves receipt id from its current owner, the caller, to a new owner.
func (e *Engine) Transfer(caller, to ethcommon.Address, id uint64) error {
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	tok, err := e.load(id)
	if err != nil {
		return err
	}
	if tok.Owner != caller {
		return ErrNotOwner
	}
	from := tok.Owner
	tok.Owner = to
	if err := e.state.KVPut(e.tokenKey(id), tok); err != nil {
		return err
	}
	e.emit(EventTypeTransferred, id, from, to)
	return nil
}

// OwnerOf returns the current holder of receipt id.
func (e *Engine) OwnerOf(id uint64) (ethcommon.Address, error) {
	tok, err := e.load(id)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return tok.Owner, nil
}

// Exists reports whether receipt id is live.
func (e *Engine) Exists(id uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.KVGet(e.tokenKey(id), nil)
}

// BindingOf returns the loan a receipt is bound to.
func (e *Engine) BindingOf(id uint64) (Binding, error) {
	tok, err := e.load(id)
	if err != nil {
		return Binding{}, err
	}
	return tok.Binding, nil
}
