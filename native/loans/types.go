package loans

import (
	"math"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftlend/native/common"
	"nftlend/native/signing"
)

// LoanTerms are the agreed terms of an originated loan. Lender and Borrower
// are the original parties; current rights follow the receipt tokens once
// minted.
type LoanTerms struct {
	OfferType          signing.OfferType
	Currency           ethcommon.Address
	Principal          *big.Int
	MaxRepayment       *big.Int
	CollateralContract ethcommon.Address
	CollateralID       *big.Int
	Lender             ethcommon.Address
	Borrower           ethcommon.Address
	Start              uint64
	Duration           uint64
	ProRata            bool
	OriginationFee     *big.Int
	// AdminFeeBps is fixed at origination so later parameter changes do not
	// alter an active loan.
	AdminFeeBps uint64
	// LockID is the escrow lock holding the collateral.
	LockID uint64
}

// Maturity is the last second at which the loan can still be repaid. It
// saturates at the largest timestamp.
func (t *LoanTerms) Maturity() uint64 {
	if t.Duration > math.MaxUint64-t.Start {
		return math.MaxUint64
	}
	return t.Start + t.Duration
}

// Expired reports whether now lies past maturity.
func (t *LoanTerms) Expired(now uint64) bool {
	return now > t.Maturity()
}

// Clone returns a deep copy.
func (t *LoanTerms) Clone() *LoanTerms {
	if t == nil {
		return nil
	}
	out := *t
	out.Principal = nativecommon.CloneBig(t.Principal)
	out.MaxRepayment = nativecommon.CloneBig(t.MaxRepayment)
	out.CollateralID = nativecommon.CloneBig(t.CollateralID)
	out.OriginationFee = nativecommon.CloneBig(t.OriginationFee)
	return &out
}

// Payoff returns the amount that settles the loan at now: principal plus the
// interest accrued so far. Fixed-rate loans owe the full interest at once;
// pro-rata loans accrue linearly over the duration.
func (t *LoanTerms) Payoff(now uint64) *big.Int {
	principal := nativecommon.CloneBig(t.Principal)
	interest := new(big.Int).Sub(nativecommon.CloneBig(t.MaxRepayment), principal)
	if interest.Sign() <= 0 {
		return principal
	}
	if t.ProRata && t.Duration > 0 {
		elapsed := uint64(0)
		if now > t.Start {
			elapsed = now - t.Start
		}
		if elapsed < t.Duration {
			interest.Mul(interest, new(big.Int).SetUint64(elapsed))
			interest.Quo(interest, new(big.Int).SetUint64(t.Duration))
		}
	}
	return principal.Add(principal, interest)
}

// Params configures one loan engine.
type Params struct {
	MaxLoanDuration uint64
	AdminFeeBps     uint64
	Treasury        ethcommon.Address
}
