package bank

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

var (
	ErrNilState              = errors.New("bank: state not configured")
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrZeroAddress           = errors.New("bank: zero address")
)

const (
	EventTypeTransfer = "bank.transfer"
	EventTypeApproval = "bank.approval"
	EventTypeMint     = "bank.mint"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger keeps fungible balances for every settlement currency. A currency
// is identified by its token contract address.
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

func balanceKey(currency, holder ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("bank/balance/%s/%s", currency.Hex(), holder.Hex()))
}

func allowanceKey(currency, owner, spender ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("bank/allowance/%s/%s/%s", currency.Hex(), owner.Hex(), spender.Hex()))
}

func supplyKey(currency ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("bank/supply/%s", currency.Hex()))
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	amount := new(big.Int)
	ok, err := l.state.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Balance returns the holder's balance of currency.
func (l *Ledger) Balance(currency, holder ethcommon.Address) (*big.Int, error) {
	return l.readAmount(balanceKey(currency, holder))
}

// TotalSupply returns the amount of currency minted so far.
func (l *Ledger) TotalSupply(currency ethcommon.Address) (*big.Int, error) {
	return l.readAmount(supplyKey(currency))
}

// Mint credits new units of currency to the recipient.
func (l *Ledger) Mint(currency, to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) || currency == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	balance, err := l.Balance(currency, to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply(currency)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(balanceKey(currency, to), balance.Add(balance, amount)); err != nil {
		return err
	}
	if err := l.state.KVPut(supplyKey(currency), supply.Add(supply, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.New(EventTypeMint).
		With("currency", currency.Hex()).
		With("to", to.Hex()).
		With("amount", amount.String()))
	return nil
}

// Transfer moves amount of currency from the caller to the recipient.
func (l *Ledger) Transfer(currency, from, to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := l.Balance(currency, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}
	toBalance, err := l.Balance(currency, to)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(balanceKey(currency, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.state.KVPut(balanceKey(currency, to), toBalance.Add(toBalance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.New(EventTypeTransfer).
		With("currency", currency.Hex()).
		With("from", from.Hex()).
		With("to", to.Hex()).
		With("amount", amount.String()))
	return nil
}

// Approve sets the amount spender may move on the owner's behalf.
func (l *Ledger) Approve(currency, owner, spender ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.state.KVPut(allowanceKey(currency, owner, spender), new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.New(EventTypeApproval).
		With("currency", currency.Hex()).
		With("owner", owner.Hex()).
		With("spender", spender.Hex()).
		With("amount", amount.String()))
	return nil
}

// Allowance returns the remaining amount spender may move for owner.
func (l *Ledger) Allowance(currency, owner, spender ethcommon.Address) (*big.Int, error) {
	return l.readAmount(allowanceKey(currency, owner, spender))
}

// TransferFrom moves funds from owner to recipient using the spender's allowance.
func (l *Ledger) TransferFrom(spender, currency, owner, to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if spender == owner {
		return l.Transfer(currency, owner, to, amount)
	}
	allowance, err := l.Allowance(currency, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may move %s of %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance, owner.Hex(), amount)
	}
	if err := l.Transfer(currency, owner, to, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	return l.state.KVPut(allowanceKey(currency, owner, spender), allowance.Sub(allowance, amount))
}
