package loans

import (
	"math/big"

	"nftlend/native/signing"
)

// collateralPredicate decides whether a token id satisfies an offer.
type collateralPredicate func(offer signing.Offer, id *big.Int) bool

var predicates = map[signing.OfferType]collateralPredicate{
	signing.AssetOffer: func(offer signing.Offer, id *big.Int) bool {
		return offer.CollateralID != nil && id.Cmp(offer.CollateralID) == 0
	},
	signing.CollectionOffer: func(signing.Offer, *big.Int) bool {
		return true
	},
	signing.CollectionRangeOffer: func(offer signing.Offer, id *big.Int) bool {
		if offer.MinCollateralID == nil || offer.MaxCollateralID == nil {
			return false
		}
		return id.Cmp(offer.MinCollateralID) >= 0 && id.Cmp(offer.MaxCollateralID) <= 0
	},
}

// resolveCollateralID picks the token the borrower pledges. Asset offers
// default to the id named in the offer.
func resolveCollateralID(offerType signing.OfferType, offer signing.Offer, requested *big.Int) *big.Int {
	if requested != nil {
		return new(big.Int).Set(requested)
	}
	if offerType == signing.AssetOffer && offer.CollateralID != nil {
		return new(big.Int).Set(offer.CollateralID)
	}
	return nil
}

// tracksLiquidityCap reports whether repeated draws against one nonce are
// metered by the offer's liquidity cap instead of consuming the nonce.
func tracksLiquidityCap(offerType signing.OfferType, offer signing.Offer) bool {
	if offerType == signing.AssetOffer {
		return false
	}
	return offer.LiquidityCap != nil && offer.LiquidityCap.Sign() > 0
}
