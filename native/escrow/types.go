package escrow

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
)

// Asset identifies one piece of collateral.
type Asset struct {
	Contract ethcommon.Address
	TokenID  *big.Int
}

func (a Asset) String() string {
	id := "0"
	if a.TokenID != nil {
		id = a.TokenID.String()
	}
	return fmt.Sprintf("%s/%s", a.Contract.Hex(), id)
}

// Lock records one unit of collateral held on behalf of a loan contract.
type Lock struct {
	Contract ethcommon.Address
	TokenID  *big.Int
	Owner    ethcommon.Address
	Locker   ethcommon.Address
	Custody  ethcommon.Address
	Wrapper  string
	// Personal is set when the asset stays in the owner's isolated vault.
	Personal bool
	LockedAt uint64
}

// Asset returns the locked asset.
func (l *Lock) Asset() Asset {
	return Asset{Contract: l.Contract, TokenID: nativecommon.CloneBig(l.TokenID)}
}

// Deposit records the units of one asset an owner parked in a personal
// vault. Locked of them back active loans.
type Deposit struct {
	Owner   ethcommon.Address
	Vault   ethcommon.Address
	Wrapper string
	Units   uint64
	Locked  uint64
}
