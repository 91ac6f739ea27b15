package liquidity

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
)

// Market is the per-currency pool book. Underlying assets are the pool's
// bank balance; shares are redeemed pro rata against it.
type Market struct {
	TotalShares *big.Int
	FeesEarned  *big.Int
	FlashLoans  uint64
}

func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	return &Market{
		TotalShares: nativecommon.CloneBig(m.TotalShares),
		FeesEarned:  nativecommon.CloneBig(m.FeesEarned),
		FlashLoans:  m.FlashLoans,
	}
}

// FlashBorrower receives flash-loaned funds and must have approved the pool
// for amount + fee by the time OnFlashLoan returns.
type FlashBorrower interface {
	Address() ethcommon.Address
	OnFlashLoan(initiator, currency ethcommon.Address, amount, fee *big.Int, data []byte) error
}
