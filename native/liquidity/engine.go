package liquidity

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
)

var (
	ErrNilState              = errors.New("liquidity: state not configured")
	ErrNilBank               = errors.New("liquidity: bank not configured")
	ErrInvalidAmount         = errors.New("liquidity: amount must be positive")
	ErrInsufficientShares    = errors.New("liquidity: insufficient shares")
	ErrInsufficientLiquidity = errors.New("liquidity: insufficient liquidity")
	ErrCurrencyNotPermitted  = errors.New("liquidity: currency not permitted")
	ErrReentrantFlashLoan    = errors.New("liquidity: flash loan already in progress")
	ErrFlashLoanNotRepaid    = errors.New("liquidity: flash loan not repaid")
	ErrInvalidFeeBps         = errors.New("liquidity: flash fee exceeds 100%")
)

const moduleName = "liquidity"

const (
	EventTypeSupplied  = "liquidity.supplied"
	EventTypeWithdrawn = "liquidity.withdrawn"
	EventTypeFlashLoan = "liquidity.flash_loan"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Bank is the currency ledger holding pool funds.
type Bank interface {
	Balance(currency, holder ethcommon.Address) (*big.Int, error)
	Transfer(currency, from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, currency, owner, to ethcommon.Address, amount *big.Int) error
}

// CurrencyRegistry limits which currencies the pool accepts.
type CurrencyRegistry interface {
	IsPermittedCurrency(currency ethcommon.Address) (bool, error)
}

// Engine is a share-based liquidity pool that also serves single-call flash
// loans at a fixed fee.
type Engine struct {
	address     ethcommon.Address
	state       engineState
	bank        Bank
	currencies  CurrencyRegistry
	pauses      nativecommon.PauseView
	emitter     events.Emitter
	flashFeeBps uint64
	inFlash     bool
}

func NewEngine(address ethcommon.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBank(bank Bank) { e.bank = bank }

func (e *Engine) SetCurrencies(r CurrencyRegistry) { e.currencies = r }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetFlashFeeBps sets the fixed flash fee rate.
func (e *Engine) SetFlashFeeBps(bps uint64) error {
	if bps > nativecommon.BasisPointsDenominator {
		return ErrInvalidFeeBps
	}
	e.flashFeeBps = bps
	return nil
}

func (e *Engine) FlashFeeBps() uint64 { return e.flashFeeBps }

func marketKey(currency ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("liquidity/market/%s", currency.Hex()))
}

func sharesKey(currency, holder ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("liquidity/shares/%s/%s", currency.Hex(), holder.Hex()))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.bank == nil {
		return ErrNilBank
	}
	return nil
}

// Market returns the pool book for currency.
func (e *Engine) Market(currency ethcommon.Address) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	var market Market
	if _, err := e.state.KVGet(marketKey(currency), &market); err != nil {
		return nil, err
	}
	market.TotalShares = nativecommon.CloneBig(market.TotalShares)
	market.FeesEarned = nativecommon.CloneBig(market.FeesEarned)
	return &market, nil
}

// SharesOf returns holder's pool shares for currency.
func (e *Engine) SharesOf(currency, holder ethcommon.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	shares := new(big.Int)
	if _, err := e.state.KVGet(sharesKey(currency, holder), shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Liquidity is the currency available for withdrawal or flash loans.
func (e *Engine) Liquidity(currency ethcommon.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.bank.Balance(currency, e.address)
}

// FlashFee is the fee owed on a flash loan of amount.
func (e *Engine) FlashFee(currency ethcommon.Address, amount *big.Int) *big.Int {
	return nativecommon.MulBps(amount, e.flashFeeBps)
}

// Supply deposits amount of currency from supplier, who must have approved
// the pool, and mints shares at the current share price.
func (e *Engine) Supply(supplier, currency ethcommon.Address, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.currencies != nil {
		ok, err := e.currencies.IsPermittedCurrency(currency)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCurrencyNotPermitted
		}
	}
	market, err := e.Market(currency)
	if err != nil {
		return nil, err
	}
	assets, err := e.bank.Balance(currency, e.address)
	if err != nil {
		return nil, err
	}

	// First deposit, or a pool drained to zero, mints one share per unit.
	minted := new(big.Int).Set(amount)
	if market.TotalShares.Sign() > 0 && assets.Sign() > 0 {
		minted.Mul(amount, market.TotalShares)
		minted.Quo(minted, assets)
		if minted.Sign() == 0 {
			return nil, ErrInvalidAmount
		}
	}
	if err := e.bank.TransferFrom(e.address, currency, supplier, e.address, amount); err != nil {
		return nil, err
	}

	shares, err := e.SharesOf(currency, supplier)
	if err != nil {
		return nil, err
	}
	shares.Add(shares, minted)
	market.TotalShares.Add(market.TotalShares, minted)
	if err := e.state.KVPut(sharesKey(currency, supplier), shares); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(marketKey(currency), market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.New(EventTypeSupplied).
		With("currency", currency.Hex()).
		With("supplier", supplier.Hex()).
		With("amount", amount.String()).
		With("shares", minted.String()))
	return minted, nil
}

// Withdraw burns shares and returns the redeemed currency amount.
func (e *Engine) Withdraw(supplier, currency ethcommon.Address, shares *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.Market(currency)
	if err != nil {
		return nil, err
	}
	held, err := e.SharesOf(currency, supplier)
	if err != nil {
		return nil, err
	}
	if held.Cmp(shares) < 0 || market.TotalShares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	assets, err := e.bank.Balance(currency, e.address)
	if err != nil {
		return nil, err
	}
	redeem := new(big.Int).Mul(shares, assets)
	redeem.Quo(redeem, market.TotalShares)
	if redeem.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if err := e.bank.Transfer(currency, e.address, supplier, redeem); err != nil {
		return nil, err
	}

	held.Sub(held, shares)
	market.TotalShares.Sub(market.TotalShares, shares)
	if err := e.state.KVPut(sharesKey(currency, supplier), held); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(marketKey(currency), market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.New(EventTypeWithdrawn).
		With("currency", currency.Hex()).
		With("supplier", supplier.Hex()).
		With("amount", redeem.String()).
		With("shares", shares.String()))
	return redeem, nil
}

// FlashLoan lends amount to borrower for the duration of its OnFlashLoan
// callback and pulls back amount + fee afterwards. Any shortfall fails the
// call; the enclosing state snapshot undoes the transfer out.
func (e *Engine) FlashLoan(initiator ethcommon.Address, borrower FlashBorrower, currency ethcommon.Address, amount *big.Int, data []byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.inFlash {
		return nil, ErrReentrantFlashLoan
	}
	e.inFlash = true
	defer func() { e.inFlash = false }()

	before, err := e.bank.Balance(currency, e.address)
	if err != nil {
		return nil, err
	}
	if before.Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	fee := e.FlashFee(currency, amount)
	receiver := borrower.Address()
	if err := e.bank.Transfer(currency, e.address, receiver, amount); err != nil {
		return nil, err
	}
	if err := borrower.OnFlashLoan(initiator, currency, new(big.Int).Set(amount), new(big.Int).Set(fee), data); err != nil {
		return nil, err
	}
	owed := new(big.Int).Add(amount, fee)
	if err := e.bank.TransferFrom(e.address, currency, receiver, e.address, owed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFlashLoanNotRepaid, err)
	}
	after, err := e.bank.Balance(currency, e.address)
	if err != nil {
		return nil, err
	}
	if after.Cmp(new(big.Int).Add(before, fee)) < 0 {
		return nil, ErrFlashLoanNotRepaid
	}

	market, err := e.Market(currency)
	if err != nil {
		return nil, err
	}
	market.FeesEarned.Add(market.FeesEarned, fee)
	market.FlashLoans++
	if err := e.state.KVPut(marketKey(currency), market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.New(EventTypeFlashLoan).
		With("currency", currency.Hex()).
		With("initiator", initiator.Hex()).
		With("receiver", receiver.Hex()).
		With("amount", amount.String()).
		With("fee", fee.String()))
	return fee, nil
}
