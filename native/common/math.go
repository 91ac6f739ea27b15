package common

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// BasisPointsDenominator is the divisor for every fee expressed in basis points.
const BasisPointsDenominator = 10_000

// CloneBig returns an independent copy, mapping nil to zero.
func CloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MulBps returns amount * bps / 10_000, rounded down.
func MulBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(BasisPointsDenominator))
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr ethcommon.Address) bool {
	return addr == (ethcommon.Address{})
}
