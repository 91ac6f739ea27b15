package escrow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
)

var (
	ErrNilState             = errors.New("escrow: state not configured")
	ErrNilRegistry          = errors.New("escrow: registry not configured")
	ErrNotLoanContract      = errors.New("escrow: caller is not a registered loan contract")
	ErrNotLocker            = errors.New("escrow: caller did not lock this asset")
	ErrAlreadyLocked        = errors.New("escrow: every deposited unit is locked")
	ErrNotLocked            = errors.New("escrow: asset not locked")
	ErrNoAdapter            = errors.New("escrow: no adapter for asset type")
	ErrNotAssetOwner        = errors.New("escrow: owner does not hold the asset")
	ErrPersonalEscrowExists = errors.New("escrow: personal escrow already exists")
	ErrNoPersonalEscrow     = errors.New("escrow: personal escrow not created")
	ErrNotDeposited         = errors.New("escrow: asset not in a personal escrow")
	ErrZeroRecipient        = errors.New("escrow: zero recipient")
)

const moduleName = "escrow"

const (
	EventTypeCollateralLocked   = "escrow.collateral.locked"
	EventTypeCollateralReleased = "escrow.collateral.released"
	EventTypePersonalCreated    = "escrow.personal.created"
	EventTypePersonalDeposited  = "escrow.personal.deposited"
	EventTypePersonalWithdrawn  = "escrow.personal.withdrawn"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry is the permitted-asset view the escrow consults.
type Registry interface {
	IsLoanContract(addr ethcommon.Address) (bool, error)
	WrapperFor(contract ethcommon.Address) (string, error)
}

// Engine holds collateral for loan contracts in a shared pool or in
// per-owner personal vaults.
type Engine struct {
	address  ethcommon.Address
	state    engineState
	registry Registry
	adapters map[string]Adapter
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine creates an escrow whose shared pool lives at address.
func NewEngine(address ethcommon.Address) *Engine {
	return &Engine{
		address:  address,
		adapters: make(map[string]Adapter),
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// Address returns the shared pool custody address.
func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetRegistry(registry Registry) { e.registry = registry }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for lock timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterAdapter installs the adapter for a wrapper name.
func (e *Engine) RegisterAdapter(wrapper string, adapter Adapter) {
	e.adapters[strings.ToLower(strings.TrimSpace(wrapper))] = adapter
}

// RegisterAdapters installs every adapter of a capability table.
func (e *Engine) RegisterAdapters(table map[string]Adapter) {
	for name, adapter := range table {
		e.RegisterAdapter(name, adapter)
	}
}

var lockTotalKey = []byte("escrow/lock/total")

func lockKey(id uint64) []byte {
	return []byte(fmt.Sprintf("escrow/lock/%d", id))
}

func depositKey(asset Asset, owner ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("escrow/deposit/%s/%s", asset, owner.Hex()))
}

func vaultKey(owner ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("escrow/vault/%s", owner.Hex()))
}

// PersonalVaultAddress derives the custody address of owner's isolated vault.
func (e *Engine) PersonalVaultAddress(owner ethcommon.Address) ethcommon.Address {
	digest := ethcrypto.Keccak256([]byte("personal-escrow"), e.address.Bytes(), owner.Bytes())
	return ethcommon.BytesToAddress(digest[12:])
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.registry == nil {
		return ErrNilRegistry
	}
	return nil
}

func (e *Engine) adapterFor(wrapper string) (Adapter, error) {
	adapter, ok := e.adapters[wrapper]
	if !ok || adapter == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoAdapter, wrapper)
	}
	return adapter, nil
}

func (e *Engine) resolveAdapter(asset Asset) (string, Adapter, error) {
	wrapper, err := e.registry.WrapperFor(asset.Contract)
	if err != nil {
		return "", nil, err
	}
	adapter, err := e.adapterFor(wrapper)
	if err != nil {
		return "", nil, err
	}
	return wrapper, adapter, nil
}

// LockOf returns a lock by id, if it is still held.
func (e *Engine) LockOf(lockID uint64) (*Lock, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	var lock Lock
	ok, err := e.state.KVGet(lockKey(lockID), &lock)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lock, true, nil
}

// DepositOf returns owner's personal vault holding of an asset, if any.
func (e *Engine) DepositOf(asset Asset, owner ethcommon.Address) (*Deposit, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	var deposit Deposit
	ok, err := e.state.KVGet(depositKey(asset, owner), &deposit)
	if err != nil || !ok {
		return nil, false, err
	}
	return &deposit, true, nil
}

func (e *Engine) putDeposit(asset Asset, deposit *Deposit) error {
	if deposit.Units == 0 {
		return e.state.KVDelete(depositKey(asset, deposit.Owner))
	}
	return e.state.KVPut(depositKey(asset, deposit.Owner), deposit)
}

func (e *Engine) nextLockID() (uint64, error) {
	var total uint64
	if _, err := e.state.KVGet(lockTotalKey, &total); err != nil {
		return 0, err
	}
	total++
	if err := e.state.KVPut(lockTotalKey, total); err != nil {
		return 0, err
	}
	return total, nil
}

// GrantCustody lets the escrow pool pull an asset the caller holds. Loan
// contracts that hold collateral transiently use it before re-locking.
func (e *Engine) GrantCustody(caller ethcommon.Address, asset Asset) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, adapter, err := e.resolveAdapter(asset)
	if err != nil {
		return err
	}
	return adapter.GrantCustody(caller, e.address, asset)
}

// Lock takes custody of one unit of asset from owner on behalf of the calling
// loan contract and returns the lock id the contract releases it by. An
// unlocked unit already parked in the owner's personal vault is locked in
// place.
func (e *Engine) Lock(caller ethcommon.Address, asset Asset, owner ethcommon.Address) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.ready(); err != nil {
		return 0, err
	}
	allowed, err := e.registry.IsLoanContract(caller)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, ErrNotLoanContract
	}

	lock := Lock{
		Contract: asset.Contract,
		TokenID:  nativecommon.CloneBig(asset.TokenID),
		Owner:    owner,
		Locker:   caller,
		LockedAt: uint64(e.nowFn()),
	}
	deposit, deposited, err := e.DepositOf(asset, owner)
	if err != nil {
		return 0, err
	}
	if deposited && deposit.Locked < deposit.Units {
		deposit.Locked++
		if err := e.putDeposit(asset, deposit); err != nil {
			return 0, err
		}
		lock.Custody = deposit.Vault
		lock.Wrapper = deposit.Wrapper
		lock.Personal = true
	} else {
		wrapper, adapter, err := e.resolveAdapter(asset)
		if err != nil {
			return 0, err
		}
		if held, err := adapter.OwnedBy(owner, asset); err != nil {
			return 0, err
		} else if !held {
			return 0, fmt.Errorf("%w: %s", ErrNotAssetOwner, asset)
		}
		if err := adapter.TransferIn(owner, e.address, asset); err != nil {
			return 0, fmt.Errorf("escrow: transfer in %s: %w", asset, err)
		}
		lock.Custody = e.address
		lock.Wrapper = wrapper
	}
	lockID, err := e.nextLockID()
	if err != nil {
		return 0, err
	}
	if err := e.state.KVPut(lockKey(lockID), lock); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.New(EventTypeCollateralLocked).
		With("lockId", strconv.FormatUint(lockID, 10)).
		With("asset", asset.String()).
		With("owner", owner.Hex()).
		With("locker", caller.Hex()).
		With("custody", lock.Custody.Hex()).
		With("personal", strconv.FormatBool(lock.Personal)))
	return lockID, nil
}

// Release hands the collateral of lockID to recipient. Only the locking
// contract may release. Releasing a personal-vault unit back to its owner
// leaves it parked in the vault.
func (e *Engine) Release(caller ethcommon.Address, lockID uint64, to ethcommon.Address) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroRecipient
	}
	lock, locked, err := e.LockOf(lockID)
	if err != nil {
		return err
	}
	if !locked {
		return ErrNotLocked
	}
	if lock.Locker != caller {
		return ErrNotLocker
	}
	asset := lock.Asset()
	if lock.Personal {
		deposit, ok, err := e.DepositOf(asset, lock.Owner)
		if err != nil {
			return err
		}
		if !ok || deposit.Locked == 0 {
			return fmt.Errorf("%w: %s", ErrNotDeposited, asset)
		}
		deposit.Locked--
		if to != lock.Owner {
			deposit.Units--
		}
		if err := e.putDeposit(asset, deposit); err != nil {
			return err
		}
	}
	if !lock.Personal || to != lock.Owner {
		adapter, err := e.adapterFor(lock.Wrapper)
		if err != nil {
			return err
		}
		if err := adapter.TransferOut(lock.Custody, to, asset); err != nil {
			return fmt.Errorf("escrow: transfer out %s: %w", asset, err)
		}
	}
	if err := e.state.KVDelete(lockKey(lockID)); err != nil {
		return err
	}
	e.emitter.Emit(events.New(EventTypeCollateralReleased).
		With("lockId", strconv.FormatUint(lockID, 10)).
		With("asset", asset.String()).
		With("to", to.Hex()).
		With("locker", caller.Hex()))
	return nil
}

// CreatePersonalEscrow opens an isolated vault for owner.
func (e *Engine) CreatePersonalEscrow(owner ethcommon.Address) (ethcommon.Address, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return ethcommon.Address{}, err
	}
	if err := e.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	exists, err := e.state.KVGet(vaultKey(owner), nil)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if exists {
		return ethcommon.Address{}, ErrPersonalEscrowExists
	}
	vault := e.PersonalVaultAddress(owner)
	if err := e.state.KVPut(vaultKey(owner), vault); err != nil {
		return ethcommon.Address{}, err
	}
	e.emitter.Emit(events.New(EventTypePersonalCreated).
		With("owner", owner.Hex()).
		With("vault", vault.Hex()))
	return vault, nil
}

// PersonalEscrowOf returns owner's vault address if one was created.
func (e *Engine) PersonalEscrowOf(owner ethcommon.Address) (ethcommon.Address, bool, error) {
	if e == nil || e.state == nil {
		return ethcommon.Address{}, false, ErrNilState
	}
	var vault ethcommon.Address
	ok, err := e.state.KVGet(vaultKey(owner), &vault)
	return vault, ok, err
}

// DepositPersonal moves one unit of an asset the caller owns into the
// caller's vault.
func (e *Engine) DepositPersonal(caller ethcommon.Address, asset Asset) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	vault, ok, err := e.PersonalEscrowOf(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPersonalEscrow
	}
	wrapper, adapter, err := e.resolveAdapter(asset)
	if err != nil {
		return err
	}
	if err := adapter.GrantCustody(caller, vault, asset); err != nil {
		return err
	}
	if err := adapter.TransferIn(caller, vault, asset); err != nil {
		return fmt.Errorf("escrow: deposit %s: %w", asset, err)
	}
	deposit, ok, err := e.DepositOf(asset, caller)
	if err != nil {
		return err
	}
	if !ok {
		deposit = &Deposit{Owner: caller, Vault: vault, Wrapper: wrapper}
	}
	deposit.Units++
	if err := e.putDeposit(asset, deposit); err != nil {
		return err
	}
	e.emitter.Emit(events.New(EventTypePersonalDeposited).
		With("asset", asset.String()).
		With("owner", caller.Hex()).
		With("vault", vault.Hex()))
	return nil
}

// ReleaseNFT withdraws one unlocked unit from the caller's personal vault.
func (e *Engine) ReleaseNFT(caller ethcommon.Address, asset Asset, to ethcommon.Address) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroRecipient
	}
	deposit, ok, err := e.DepositOf(asset, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDeposited
	}
	if deposit.Locked >= deposit.Units {
		return ErrAlreadyLocked
	}
	adapter, err := e.adapterFor(deposit.Wrapper)
	if err != nil {
		return err
	}
	if err := adapter.TransferOut(deposit.Vault, to, asset); err != nil {
		return fmt.Errorf("escrow: withdraw %s: %w", asset, err)
	}
	deposit.Units--
	if err := e.putDeposit(asset, deposit); err != nil {
		return err
	}
	e.emitter.Emit(events.New(EventTypePersonalWithdrawn).
		With("asset", asset.String()).
		With("owner", caller.Hex()).
		With("to", to.Hex()))
	return nil
}
