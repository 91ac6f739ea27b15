package coordinator

import ethcommon "github.com/ethereum/go-ethereum/common"

// LoanStatus is the lifecycle state of a loan. NEW is the only
// non-terminal state.
type LoanStatus uint8

const (
	StatusNone LoanStatus = iota
	StatusNew
	StatusRepaid
	StatusLiquidated
)

func (s LoanStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusRepaid:
		return "REPAID"
	case StatusLiquidated:
		return "LIQUIDATED"
	}
	return "NONE"
}

// Terminal reports whether no further transition is permitted.
func (s LoanStatus) Terminal() bool {
	return s == StatusRepaid || s == StatusLiquidated
}

// LoanData is the coordinator's record of a loan.
type LoanData struct {
	Status LoanStatus
	// LoanContract registered the loan and is the only caller that may
	// mint its receipts or resolve it.
	LoanContract ethcommon.Address
	// ReceiptID is shared by the promissory note and the obligation receipt.
	// Zero until the first receipt is minted.
	ReceiptID uint64
}
