package escrow

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Adapter hides the transfer semantics of one collateral standard.
type Adapter interface {
	// GrantCustody lets custody pull the asset from holder.
	GrantCustody(holder, custody ethcommon.Address, asset Asset) error
	TransferIn(owner, custody ethcommon.Address, asset Asset) error
	TransferOut(custody, to ethcommon.Address, asset Asset) error
	OwnedBy(holder ethcommon.Address, asset Asset) (bool, error)
}

// CollateralLedger is the asset ledger the built-in adapters drive.
type CollateralLedger interface {
	OwnerOf(contract ethcommon.Address, id *big.Int) (ethcommon.Address, error)
	Approve721(caller, contract ethcommon.Address, id *big.Int, operator ethcommon.Address) error
	TransferFrom721(operator, contract, from, to ethcommon.Address, id *big.Int) error

	BalanceOf1155(contract, holder ethcommon.Address, id *big.Int) (*big.Int, error)
	SetApprovalForAll1155(owner, contract, operator ethcommon.Address, approved bool) error
	SafeTransfer1155(operator, contract, from, to ethcommon.Address, id, amount *big.Int) error

	PunkOwner(contract ethcommon.Address, index *big.Int) (ethcommon.Address, error)
	OfferPunkForSaleToAddress(caller, contract ethcommon.Address, index *big.Int, buyer ethcommon.Address) error
	BuyPunk(caller, contract ethcommon.Address, index *big.Int) error
	TransferPunk(caller, contract, to ethcommon.Address, index *big.Int) error

	NameOwner(contract ethcommon.Address, node *big.Int) (ethcommon.Address, error)
	SetNameOperator(owner, contract, operator ethcommon.Address, approved bool) error
	SetNameOwner(caller, contract ethcommon.Address, node *big.Int, newOwner ethcommon.Address) error
}

const (
	WrapperERC721  = "erc721"
	WrapperERC1155 = "erc1155"
	WrapperPunks   = "punks"
	WrapperNames   = "names"
)

// DefaultAdapters builds the capability table for every built-in standard.
func DefaultAdapters(ledger CollateralLedger) map[string]Adapter {
	return map[string]Adapter{
		WrapperERC721:  erc721Adapter{ledger: ledger},
		WrapperERC1155: erc1155Adapter{ledger: ledger},
		WrapperPunks:   punkAdapter{ledger: ledger},
		WrapperNames:   nameAdapter{ledger: ledger},
	}
}

type erc721Adapter struct{ ledger CollateralLedger }

func (a erc721Adapter) GrantCustody(holder, custody ethcommon.Address, asset Asset) error {
	return a.ledger.Approve721(holder, asset.Contract, asset.TokenID, custody)
}

func (a erc721Adapter) TransferIn(owner, custody ethcommon.Address, asset Asset) error {
	return a.ledger.TransferFrom721(custody, asset.Contract, owner, custody, asset.TokenID)
}

func (a erc721Adapter) TransferOut(custody, to ethcommon.Address, asset Asset) error {
	return a.ledger.TransferFrom721(custody, asset.Contract, custody, to, asset.TokenID)
}

func (a erc721Adapter) OwnedBy(holder ethcommon.Address, asset Asset) (bool, error) {
	owner, err := a.ledger.OwnerOf(asset.Contract, asset.TokenID)
	if err != nil {
		return false, err
	}
	return owner == holder, nil
}

var one = big.NewInt(1)

type erc1155Adapter struct{ ledger CollateralLedger }

func (a erc1155Adapter) GrantCustody(holder, custody ethcommon.Address, asset Asset) error {
	return a.ledger.SetApprovalForAll1155(holder, asset.Contract, custody, true)
}

func (a erc1155Adapter) TransferIn(owner, custody ethcommon.Address, asset Asset) error {
	return a.ledger.SafeTransfer1155(custody, asset.Contract, owner, custody, asset.TokenID, one)
}

func (a erc1155Adapter) TransferOut(custody, to ethcommon.Address, asset Asset) error {
	return a.ledger.SafeTransfer1155(custody, asset.Contract, custody, to, asset.TokenID, one)
}

func (a erc1155Adapter) OwnedBy(holder ethcommon.Address, asset Asset) (bool, error) {
	bal, err := a.ledger.BalanceOf1155(asset.Contract, holder, asset.TokenID)
	if err != nil {
		return false, err
	}
	return bal.Sign() > 0, nil
}

type punkAdapter struct{ ledger CollateralLedger }

func (a punkAdapter) GrantCustody(holder, custody ethcommon.Address, asset Asset) error {
	return a.ledger.OfferPunkForSaleToAddress(holder, asset.Contract, asset.TokenID, custody)
}

func (a punkAdapter) TransferIn(owner, custody ethcommon.Address, asset Asset) error {
	if ok, err := a.OwnedBy(owner, asset); err != nil {
		return err
	} else if !ok {
		return ErrNotAssetOwner
	}
	return a.ledger.BuyPunk(custody, asset.Contract, asset.TokenID)
}

func (a punkAdapter) TransferOut(custody, to ethcommon.Address, asset Asset) error {
	return a.ledger.TransferPunk(custody, asset.Contract, to, asset.TokenID)
}

func (a punkAdapter) OwnedBy(holder ethcommon.Address, asset Asset) (bool, error) {
	owner, err := a.ledger.PunkOwner(asset.Contract, asset.TokenID)
	if err != nil {
		return false, err
	}
	return owner == holder, nil
}

type nameAdapter struct{ ledger CollateralLedger }

func (a nameAdapter) GrantCustody(holder, custody ethcommon.Address, asset Asset) error {
	return a.ledger.SetNameOperator(holder, asset.Contract, custody, true)
}

func (a nameAdapter) TransferIn(owner, custody ethcommon.Address, asset Asset) error {
	if ok, err := a.OwnedBy(owner, asset); err != nil {
		return err
	} else if !ok {
		return ErrNotAssetOwner
	}
	return a.ledger.SetNameOwner(custody, asset.Contract, asset.TokenID, custody)
}

func (a nameAdapter) TransferOut(custody, to ethcommon.Address, asset Asset) error {
	return a.ledger.SetNameOwner(custody, asset.Contract, asset.TokenID, to)
}

func (a nameAdapter) OwnedBy(holder ethcommon.Address, asset Asset) (bool, error) {
	owner, err := a.ledger.NameOwner(asset.Contract, asset.TokenID)
	if err != nil {
		return false, err
	}
	return owner == holder, nil
}
