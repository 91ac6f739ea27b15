package nft

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

var (
	ErrNilState          = errors.New("nft: state not configured")
	ErrTokenExists       = errors.New("nft: token already exists")
	ErrTokenNotFound     = errors.New("nft: token does not exist")
	ErrNotTokenOwner     = errors.New("nft: from is not the token owner")
	ErrNotAuthorized     = errors.New("nft: caller is not owner nor approved")
	ErrInsufficientUnits = errors.New("nft: insufficient token balance")
	ErrInvalidAmount     = errors.New("nft: amount must be positive")
	ErrZeroAddress       = errors.New("nft: zero address")
	ErrNoSaleOffer       = errors.New("nft: punk not offered to buyer")
)

const (
	EventTypeTransfer = "nft.transfer"
	EventTypeApproval = "nft.approval"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Ledger tracks ownership for every collateral standard the protocol knows.
// Each standard keeps its own key space and transfer rules.
type Ledger struct {
	state   engineState
	emitter events.Emitter
}

func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetState(state engineState) { l.state = state }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	return nil
}

func tokenKey(space string, contract ethcommon.Address, id *big.Int, suffix string) []byte {
	return []byte(fmt.Sprintf("nft/%s/%s/%s/%s", space, suffix, contract.Hex(), idString(id)))
}

func operatorKey(space string, contract, owner, operator ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("nft/%s/operator/%s/%s/%s", space, contract.Hex(), owner.Hex(), operator.Hex()))
}

func idString(id *big.Int) string {
	if id == nil {
		return "0"
	}
	return id.String()
}

func (l *Ledger) readAddress(key []byte) (ethcommon.Address, bool, error) {
	var addr ethcommon.Address
	ok, err := l.state.KVGet(key, &addr)
	return addr, ok, err
}

func (l *Ledger) isOperator(space string, contract, owner, operator ethcommon.Address) (bool, error) {
	var approved bool
	ok, err := l.state.KVGet(operatorKey(space, contract, owner, operator), &approved)
	return ok && approved, err
}

func (l *Ledger) setOperator(space string, contract, owner, operator ethcommon.Address, approved bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	if operator == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	key := operatorKey(space, contract, owner, operator)
	if approved {
		if err := l.state.KVPut(key, true); err != nil {
			return err
		}
	} else if err := l.state.KVDelete(key); err != nil {
		return err
	}
	l.emitter.Emit(events.New(EventTypeApproval).
		With("standard", space).
		With("contract", contract.Hex()).
		With("owner", owner.Hex()).
		With("operator", operator.Hex()).
		With("approved", fmt.Sprintf("%t", approved)))
	return nil
}

func (l *Ledger) emitTransfer(space string, contract, from, to ethcommon.Address, id, amount *big.Int) {
	evt := events.New(EventTypeTransfer).
		With("standard", space).
		With("contract", contract.Hex()).
		With("from", from.Hex()).
		With("to", to.Hex()).
		With("tokenId", idString(id))
	if amount != nil {
		evt.With("amount", amount.String())
	}
	l.emitter.Emit(evt)
}
