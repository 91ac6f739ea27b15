package nft

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Punk-style contracts predate approvals: the owner offers a token to one
// buyer and the buyer pulls it with BuyPunk.
const spacePunk = "punk"

// MintPunk assigns a punk index to its first owner.
func (l *Ledger) MintPunk(contract, to ethcommon.Address, index *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	key := tokenKey(spacePunk, contract, index, "owner")
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
	l.emitTransfer(spacePunk, contract, ethcommon.Address{}, to, index, nil)
	return nil
}

// PunkOwner returns the owner of a punk index.
func (l *Ledger) PunkOwner(contract ethcommon.Address, index *big.Int) (ethcommon.Address, error) {
	if err := l.ready(); err != nil {
		return ethcommon.Address{}, err
	}
	owner, ok, err := l.readAddress(tokenKey(spacePunk, contract, index, "owner"))
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !ok {
		return ethcommon.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// OfferPunkForSaleToAddress lets a single buyer claim the punk for free.
func (l *Ledger) OfferPunkForSaleToAddress(caller, contract ethcommon.Address, index *big.Int, buyer ethcommon.Address) error {
	owner, err := l.PunkOwner(contract, index)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotAuthorized
	}
	return l.state.KVPut(tokenKey(spacePunk, contract, index, "offer"), buyer)
}

// BuyPunk claims a punk offered to the caller.
func (l *Ledger) BuyPunk(caller, contract ethcommon.Address, index *big.Int) error {
	owner, err := l.PunkOwner(contract, index)
	if err != nil {
		return err
	}
	offerKey := tokenKey(spacePunk, contract, index, "offer")
	buyer, ok, err := l.readAddress(offerKey)
	if err != nil {
		return err
	}
	if !ok || buyer != caller {
		return ErrNoSaleOffer
	}
	return l.movePunk(contract, owner, caller, index)
}

// TransferPunk is the owner's direct transfer.
func (l *Ledger) TransferPunk(caller, contract, to ethcommon.Address, index *big.Int) error {
	owner, err := l.PunkOwner(contract, index)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotAuthorized
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	return l.movePunk(contract, owner, to, index)
}

func (l *Ledger) movePunk(contract, from, to ethcommon.Address, index *big.Int) error {
	if err := l.state.KVDelete(tokenKey(spacePunk, contract, index, "offer")); err != nil {
		return err
	}
	if err := l.state.KVPut(tokenKey(spacePunk, contract, index, "owner"), to); err != nil {
		return err
	}
	l.emitTransfer(spacePunk, contract, from, to, index, nil)
	return nil
}
