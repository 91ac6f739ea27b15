package registry

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

// InitOwner installs the first owner. It only succeeds once.
func (r *Registry) InitOwner(owner ethcommon.Address) error {
	if err := r.ready(); err != nil {
		return err
	}
	if owner == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	_, ok, err := r.getAddress(ownerKey)
	if err != nil {
		return err
	}
	if ok {
		return ErrOwnerAlreadyInitialised
	}
	if err := r.state.KVPut(ownerKey, owner); err != nil {
		return err
	}
	r.emit(events.New(EventTypeOwnershipTransfer).With("newOwner", owner.Hex()))
	return nil
}

// Owner returns the current authority, or the zero address before InitOwner.
func (r *Registry) Owner() (ethcommon.Address, error) {
	if err := r.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	owner, _, err := r.getAddress(ownerKey)
	return owner, err
}

// PendingOwner returns the proposed authority awaiting acceptance.
func (r *Registry) PendingOwner() (ethcommon.Address, error) {
	if err := r.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	pending, _, err := r.getAddress(pendingOwnerKey)
	return pending, err
}

func (r *Registry) onlyOwner(caller ethcommon.Address) error {
	if err := r.ready(); err != nil {
		return err
	}
	owner, ok, err := r.getAddress(ownerKey)
	if err != nil {
		return err
	}
	if !ok || owner != caller {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership proposes a new owner. The proposal only takes effect
// once the proposed address calls AcceptOwnership.
func (r *Registry) TransferOwnership(caller, newOwner ethcommon.Address) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if newOwner == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if err := r.state.KVPut(pendingOwnerKey, newOwner); err != nil {
		return err
	}
	r.emit(events.New(EventTypeOwnershipProposed).
		With("owner", caller.Hex()).
		With("pendingOwner", newOwner.Hex()))
	return nil
}

// AcceptOwnership completes a pending transfer.
func (r *Registry) AcceptOwnership(caller ethcommon.Address) error {
	if err := r.ready(); err != nil {
		return err
	}
	pending, ok, err := r.getAddress(pendingOwnerKey)
	if err != nil {
		return err
	}
	if !ok || pending != caller {
		return ErrNotPendingOwner
	}
	previous, _, err := r.getAddress(ownerKey)
	if err != nil {
		return err
	}
	if err := r.state.KVPut(ownerKey, caller); err != nil {
		return err
	}
	if err := r.state.KVDelete(pendingOwnerKey); err != nil {
		return err
	}
	r.emit(events.New(EventTypeOwnershipTransfer).
		With("previousOwner", previous.Hex()).
		With("newOwner", caller.Hex()))
	return nil
}

// Pause stops every mutating entry point of the named module.
func (r *Registry) Pause(caller ethcommon.Address, module string) error {
	return r.setPaused(caller, module, true)
}

// Unpause re-enables the named module.
func (r *Registry) Unpause(caller ethcommon.Address, module string) error {
	return r.setPaused(caller, module, false)
}

func (r *Registry) setPaused(caller ethcommon.Address, module string, paused bool) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	module = normalizeTag(module)
	if module == "" {
		return ErrInvalidModule
	}
	if paused {
		if err := r.state.KVPut(pausedKey(module), true); err != nil {
			return err
		}
		r.emit(events.New(EventTypePaused).With("module", module))
		return nil
	}
	if err := r.state.KVDelete(pausedKey(module)); err != nil {
		return err
	}
	r.emit(events.New(EventTypeUnpaused).With("module", module))
	return nil
}

// IsPaused implements nativecommon.PauseView. Storage failures report the
// module as paused.
func (r *Registry) IsPaused(module string) bool {
	if r == nil || r.state == nil {
		return false
	}
	var paused bool
	ok, err := r.state.KVGet(pausedKey(normalizeTag(module)), &paused)
	if err != nil {
		return true
	}
	return ok && paused
}
