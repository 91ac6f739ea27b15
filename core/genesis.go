package core

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/native/escrow"
)

var ErrUnknownStandard = errors.New("core: unknown collateral standard")

var genesisKey = []byte("node/genesis-applied")

// AssetType binds a collateral type tag to an escrow wrapper.
type AssetType struct {
	Tag     string
	Wrapper string
}

// Collateral permits a collateral contract under a type tag.
type Collateral struct {
	Contract ethcommon.Address
	Tag      string
}

// Balance mints amount of currency to holder.
type Balance struct {
	Currency ethcommon.Address
	Holder   ethcommon.Address
	Amount   *big.Int
}

// Token mints one collateral token of the given wrapper standard.
type Token struct {
	Contract ethcommon.Address
	ID       *big.Int
	Owner    ethcommon.Address
	Standard string
}

// Genesis seeds a fresh node with its permitted assets and test balances.
type Genesis struct {
	AssetTypes  []AssetType
	Collaterals []Collateral
	Currencies  []ethcommon.Address
	Balances    []Balance
	Tokens      []Token
}

// GenesisApplied reports whether ApplyGenesis already ran against this store.
func (n *Node) GenesisApplied() (bool, error) {
	var applied bool
	var ok bool
	err := n.View(func() error {
		var err error
		ok, err = n.state.KVGet(genesisKey, &applied)
		return err
	})
	return ok && applied, err
}

// ApplyGenesis seeds the registry and ledgers once. Later calls are no-ops
// and report false.
func (n *Node) ApplyGenesis(g Genesis) (bool, error) {
	applied, err := n.GenesisApplied()
	if err != nil || applied {
		return false, err
	}
	err = n.Execute("genesis", func() error {
		owner, err := n.registry.Owner()
		if err != nil {
			return err
		}
		for _, at := range g.AssetTypes {
			if err := n.registry.SetAssetType(owner, at.Tag, at.Wrapper); err != nil {
				return err
			}
		}
		for _, c := range g.Collaterals {
			if err := n.registry.SetPermittedCollateral(owner, c.Contract, c.Tag); err != nil {
				return err
			}
		}
		for _, currency := range g.Currencies {
			if err := n.registry.SetPermittedCurrency(owner, currency, true); err != nil {
				return err
			}
		}
		for _, b := range g.Balances {
			if err := n.bank.Mint(b.Currency, b.Holder, b.Amount); err != nil {
				return fmt.Errorf("core: genesis balance for %s: %w", b.Holder.Hex(), err)
			}
		}
		for _, tok := range g.Tokens {
			if err := n.MintCollateral(tok); err != nil {
				return err
			}
		}
		return n.state.KVPut(genesisKey, true)
	})
	return err == nil, err
}

// MintCollateral creates a collateral token on the ledger matching its
// standard. Callers run it inside Execute.
func (n *Node) MintCollateral(tok Token) error {
	switch tok.Standard {
	case escrow.WrapperERC721:
		return n.nfts.Mint721(tok.Contract, tok.Owner, tok.ID)
	case escrow.WrapperERC1155:
		return n.nfts.Mint1155(tok.Contract, tok.Owner, tok.ID, big.NewInt(1))
	case escrow.WrapperPunks:
		return n.nfts.MintPunk(tok.Contract, tok.Owner, tok.ID)
	case escrow.WrapperNames:
		return n.nfts.RegisterName(tok.Contract, tok.Owner, tok.ID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStandard, tok.Standard)
	}
}
