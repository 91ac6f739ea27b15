package nft

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const space1155 = "1155"

func balance1155Key(contract ethcommon.Address, id *big.Int, holder ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("nft/1155/balance/%s/%s/%s", contract.Hex(), idString(id), holder.Hex()))
}

// Mint1155 credits amount units of a multi-token id.
func (l *Ledger) Mint1155(contract, to ethcommon.Address, id, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	bal, err := l.BalanceOf1155(contract, to, id)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(balance1155Key(contract, id, to), bal.Add(bal, amount)); err != nil {
		return err
	}
	l.emitTransfer(space1155, contract, ethcommon.Address{}, to, id, amount)
	return nil
}

// BalanceOf1155 returns the number of units holder owns.
func (l *Ledger) BalanceOf1155(contract, holder ethcommon.Address, id *big.Int) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	bal := new(big.Int)
	ok, err := l.state.KVGet(balance1155Key(contract, id, holder), bal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return bal, nil
}

// SetApprovalForAll1155 lets operator move every unit owner holds in contract.
func (l *Ledger) SetApprovalForAll1155(owner, contract, operator ethcommon.Address, approved bool) error {
	return l.setOperator(space1155, contract, owner, operator, approved)
}

// SafeTransfer1155 moves amount units of id from one holder to another.
func (l *Ledger) SafeTransfer1155(operator, contract, from, to ethcommon.Address, id, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if operator != from {
		allowed, err := l.isOperator(space1155, contract, from, operator)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotAuthorized
		}
	}
	fromBal, err := l.BalanceOf1155(contract, from, id)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientUnits
	}
	toBal, err := l.BalanceOf1155(contract, to, id)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(balance1155Key(contract, id, from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.KVPut(balance1155Key(contract, id, to), toBal.Add(toBal, amount)); err != nil {
		return err
	}
	l.emitTransfer(space1155, contract, from, to, id, amount)
	return nil
}
