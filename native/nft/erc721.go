package nft

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const space721 = "721"

// Mint721 creates a single-owner token.
func (l *Ledger) Mint721(contract, to ethcommon.Address, id *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	key := tokenKey(space721, contract, id, "owner")
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
	l.emitTransfer(space721, contract, ethcommon.Address{}, to, id, nil)
	return nil
}

// OwnerOf returns the owner of a single-owner token.
func (l *Ledger) OwnerOf(contract ethcommon.Address, id *big.Int) (ethcommon.Address, error) {
	if err := l.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	owner, ok, err := l.readAddress(tokenKey(space721, contract, id, "owner"))
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !ok {
		return ethcommon.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// Approve721 lets operator move one specific token.
func (l *Ledger) Approve721(caller, contract ethcommon.Address, id *big.Int, operator ethcommon.Address) error {
	owner, err := l.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotAuthorized
	}
	return l.state.KVPut(tokenKey(space721, contract, id, "approved"), operator)
}

// SetApprovalForAll lets operator move every token of owner in contract.
func (l *Ledger) SetApprovalForAll(owner, contract, operator ethcommon.Address, approved bool) error {
	return l.setOperator(space721, contract, owner, operator, approved)
}

// IsApprovedForAll reports whether operator may move owner's tokens.
func (l *Ledger) IsApprovedForAll(owner, contract, operator ethcommon.Address) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	return l.isOperator(space721, contract, owner, operator)
}

// TransferFrom721 moves a token on behalf of operator.
func (l *Ledger) TransferFrom721(operator, contract, from, to ethcommon.Address, id *big.Int) error {
	owner, err := l.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotTokenOwner
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	approvedKey := tokenKey(space721, contract, id, "approved")
	if operator != from {
		allowed, err := l.isOperator(space721, contract, from, operator)
		if err != nil {
			return err
		}
		if !allowed {
			single, ok, err := l.readAddress(approvedKey)
			if err != nil {
				return err
			}
			if !ok || single != operator {
				return ErrNotAuthorized
			}
		}
	}
	if err := l.state.KVDelete(approvedKey); err != nil {
		return err
	}
	if err := l.state.KVPut(tokenKey(space721, contract, id, "owner"), to); err != nil {
		return err
	}
	l.emitTransfer(space721, contract, from, to, id, nil)
	return nil
}
