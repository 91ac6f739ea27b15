package signing

import (
	"math/big"

	"nftlend/crypto"
)

// SignOffer fills in the envelope for an offer signed by key.
func SignOffer(key *crypto.PrivateKey, offer Offer, offerType OfferType, nonce *big.Int, expiry uint64, domain Domain) (Signature, error) {
	sig := Signature{Signer: key.Address(), Nonce: cloneBig(nonce), Expiry: expiry}
	digest, err := OfferDigest(offer, sig, offerType, domain)
	if err != nil {
		return Signature{}, err
	}
	raw, err := key.Sign(digest[:])
	if err != nil {
		return Signature{}, err
	}
	sig.Signature = raw
	return sig, nil
}

// SignRenegotiation fills in the envelope for revised loan terms signed by key.
func SignRenegotiation(key *crypto.PrivateKey, r Renegotiation, nonce *big.Int, expiry uint64, domain Domain) (Signature, error) {
	sig := Signature{Signer: key.Address(), Nonce: cloneBig(nonce), Expiry: expiry}
	digest, err := RenegotiationDigest(r, sig, domain)
	if err != nil {
		return Signature{}, err
	}
	raw, err := key.Sign(digest[:])
	if err != nil {
		return Signature{}, err
	}
	sig.Signature = raw
	return sig, nil
}
