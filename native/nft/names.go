package nft

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Name registries are not tokens, but an owned record keyed by node id can
// still be pledged.
const spaceName = "name"

// RegisterName records the first owner of a name node.
func (l *Ledger) RegisterName(contract, to ethcommon.Address, node *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	key := tokenKey(spaceName, contract, node, "owner")
	exists, err := l.state.KVGet(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrTokenExists
	}
	if err := l.state.KVPut(key, to); err != nil {
		return err
	}
	l.emitTransfer(spaceName, contract, ethcommon.Address{}, to, node, nil)
	return nil
}

// NameOwner returns the current owner of a name node.
func (l *Ledger) NameOwner(contract ethcommon.Address, node *big.Int) (ethcommon.Address, error) {
	if err := l.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	owner, ok, err := l.readAddress(tokenKey(spaceName, contract, node, "owner"))
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !ok {
		return ethcommon.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// SetNameOperator lets operator reassign every name owner holds in contract.
func (l *Ledger) SetNameOperator(owner, contract, operator ethcommon.Address, approved bool) error {
	return l.setOperator(spaceName, contract, owner, operator, approved)
}

// SetNameOwner reassigns a name. The caller must own it or be its operator.
func (l *Ledger) SetNameOwner(caller, contract ethcommon.Address, node *big.Int, newOwner ethcommon.Address) error {
	owner, err := l.NameOwner(contract, node)
	if err != nil {
		return err
	}
	if newOwner == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if caller != owner {
		allowed, err := l.isOperator(spaceName, contract, owner, caller)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotAuthorized
		}
	}
	if err := l.state.KVPut(tokenKey(spaceName, contract, node, "owner"), newOwner); err != nil {
		return err
	}
	l.emitTransfer(spaceName, contract, owner, newOwner, node, nil)
	return nil
}
