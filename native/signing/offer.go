package signing

import (
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OfferType names an offer taxonomy. Its tag is mixed into every offer digest
// so a signature for one taxonomy never satisfies another.
type OfferType string

const (
	AssetOffer           OfferType = "ASSET_OFFER"
	CollectionOffer      OfferType = "COLLECTION_OFFER"
	CollectionRangeOffer OfferType = "COLLECTION_RANGE_OFFER"
)

// OfferTypes lists every supported taxonomy.
var OfferTypes = []OfferType{AssetOffer, CollectionOffer, CollectionRangeOffer}

// Tag returns keccak256 of the canonical taxonomy name.
func (t OfferType) Tag() [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(t)))
	return out
}

func (t OfferType) Valid() bool {
	switch t {
	case AssetOffer, CollectionOffer, CollectionRangeOffer:
		return true
	}
	return false
}

// ParseOfferType accepts canonical names as well as the short forms
// "asset", "collection" and "range".
func ParseOfferType(value string) (OfferType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "asset", "asset_offer":
		return AssetOffer, nil
	case "collection", "collection_offer":
		return CollectionOffer, nil
	case "range", "collection_range", "collection_range_offer":
		return CollectionRangeOffer, nil
	}
	return "", fmt.Errorf("signing: unknown offer type %q", value)
}

// Offer is the lender's off-channel commitment. It is never persisted; only
// the signature binding over its fields matters.
type Offer struct {
	Currency           ethcommon.Address
	Principal          *big.Int
	MaxRepayment       *big.Int
	CollateralContract ethcommon.Address
	// CollateralID is the exact token for asset offers.
	CollateralID *big.Int
	// MinCollateralID and MaxCollateralID bound range offers, inclusive.
	MinCollateralID *big.Int
	MaxCollateralID *big.Int
	Duration        uint64
	ProRata         bool
	OriginationFee  *big.Int
	// LiquidityCap limits the cumulative principal drawn against one
	// collection offer nonce. Zero means single use.
	LiquidityCap *big.Int
	// AllowedBorrowers restricts who may accept. Empty allows anyone.
	AllowedBorrowers []ethcommon.Address
}

// Clone returns a deep copy of the offer.
func (o Offer) Clone() Offer {
	out := o
	out.Principal = cloneBig(o.Principal)
	out.MaxRepayment = cloneBig(o.MaxRepayment)
	out.CollateralID = cloneBig(o.CollateralID)
	out.MinCollateralID = cloneBig(o.MinCollateralID)
	out.MaxCollateralID = cloneBig(o.MaxCollateralID)
	out.OriginationFee = cloneBig(o.OriginationFee)
	out.LiquidityCap = cloneBig(o.LiquidityCap)
	out.AllowedBorrowers = append([]ethcommon.Address(nil), o.AllowedBorrowers...)
	return out
}

// AllowsBorrower reports whether addr may accept the offer.
func (o Offer) AllowsBorrower(addr ethcommon.Address) bool {
	if len(o.AllowedBorrowers) == 0 {
		return true
	}
	for _, allowed := range o.AllowedBorrowers {
		if allowed == addr {
			return true
		}
	}
	return false
}

// Signature is the envelope accompanying an offer or renegotiation.
type Signature struct {
	Signer ethcommon.Address
	// Nonce is scoped to the signer.
	Nonce     *big.Int
	Expiry    uint64
	Signature []byte
}

// Renegotiation carries revised terms for an active loan.
type Renegotiation struct {
	LoanID          uint64
	NewDuration     uint64
	NewProRata      bool
	NewMaxRepayment *big.Int
	Fee             *big.Int
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
