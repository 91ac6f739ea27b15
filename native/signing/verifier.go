package signing

import (
	"errors"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrSignatureExpired is returned when the envelope expiry lies in the past.
// Unlike a mismatch it is always a hard failure.
var ErrSignatureExpired = errors.New("signing: signature has expired")

// SignerKind is the capability path used to validate a signer.
type SignerKind uint8

const (
	// SignerKey is an externally owned secp256k1 key.
	SignerKey SignerKind = iota
	// SignerProgrammaticAccount delegates validation to account code.
	SignerProgrammaticAccount
)

func (k SignerKind) String() string {
	switch k {
	case SignerKey:
		return "key"
	case SignerProgrammaticAccount:
		return "programmatic-account"
	}
	return "unknown"
}

// AccountValidator is exposed by programmatic signers.
type AccountValidator interface {
	IsValidSignature(digest [32]byte, signature []byte) bool
}

// AccountResolver finds the validator for a programmatic signer address.
type AccountResolver interface {
	Lookup(addr ethcommon.Address) (AccountValidator, bool, error)
}

// Verifier authenticates offers and renegotiations for one verifying contract.
type Verifier struct {
	domain   Domain
	accounts AccountResolver
	nowFn    func() int64
}

// NewVerifier binds a verifier to the contract identity and chain id it
// validates for.
func NewVerifier(contract ethcommon.Address, chainID *big.Int) *Verifier {
	return &Verifier{
		domain: Domain{Contract: contract, ChainID: cloneBig(chainID)},
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// Domain returns the verifier's binding.
func (v *Verifier) Domain() Domain {
	return Domain{Contract: v.domain.Contract, ChainID: cloneBig(v.domain.ChainID)}
}

// SetAccounts wires the programmatic account book.
func (v *Verifier) SetAccounts(r AccountResolver) { v.accounts = r }

// SetNowFunc overrides the clock used for expiry checks.
func (v *Verifier) SetNowFunc(fn func() int64) {
	if fn != nil {
		v.nowFn = fn
	}
}

// IsValidOfferSignature reports whether sig authorises offer under the given
// taxonomy. Mismatches return false; an expired envelope returns
// ErrSignatureExpired. A failure to read the account book while resolving
// the signer is returned as is and says nothing about the signature.
func (v *Verifier) IsValidOfferSignature(offer Offer, sig Signature, offerType OfferType) (bool, error) {
	if err := v.checkExpiry(sig); err != nil {
		return false, err
	}
	if !offerType.Valid() {
		return false, nil
	}
	digest, err := OfferDigest(offer, sig, offerType, v.domain)
	if err != nil {
		return false, nil
	}
	return v.validate(sig, digest)
}

// IsValidRenegotiationSignature reports whether sig authorises the revised
// loan terms. Errors follow IsValidOfferSignature.
func (v *Verifier) IsValidRenegotiationSignature(loanID uint64, newDuration uint64, newProRata bool, newMaxRepayment, fee *big.Int, sig Signature) (bool, error) {
	if err := v.checkExpiry(sig); err != nil {
		return false, err
	}
	digest, err := RenegotiationDigest(Renegotiation{
		LoanID:          loanID,
		NewDuration:     newDuration,
		NewProRata:      newProRata,
		NewMaxRepayment: newMaxRepayment,
		Fee:             fee,
	}, sig, v.domain)
	if err != nil {
		return false, nil
	}
	return v.validate(sig, digest)
}

func (v *Verifier) checkExpiry(sig Signature) error {
	now := v.nowFn()
	if now < 0 || uint64(now) > sig.Expiry {
		return ErrSignatureExpired
	}
	return nil
}

// validate resolves the signer kind once and dispatches on it.
func (v *Verifier) validate(sig Signature, digest [32]byte) (bool, error) {
	if sig.Signer == (ethcommon.Address{}) {
		return false, nil
	}
	kind, account, err := v.classify(sig.Signer)
	if err != nil {
		return false, err
	}
	switch kind {
	case SignerProgrammaticAccount:
		return account.IsValidSignature(digest, sig.Signature), nil
	default:
		return RecoverSigner(digest, sig.Signature) == sig.Signer, nil
	}
}

func (v *Verifier) classify(addr ethcommon.Address) (SignerKind, AccountValidator, error) {
	if v.accounts == nil {
		return SignerKey, nil, nil
	}
	account, ok, err := v.accounts.Lookup(addr)
	if err != nil {
		return SignerKey, nil, err
	}
	if ok && account != nil {
		return SignerProgrammaticAccount, account, nil
	}
	return SignerKey, nil, nil
}

// RecoverSigner returns the address that produced a 65-byte signature over
// digest, or the zero address when the signature is malformed. V may be
// 0/1 or 27/28; high-s signatures are rejected.
func RecoverSigner(digest [32]byte, signature []byte) ethcommon.Address {
	if len(signature) != ethcrypto.SignatureLength {
		return ethcommon.Address{}
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(sig[64], r, s, true) {
		return ethcommon.Address{}
	}
	pub, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return ethcommon.Address{}
	}
	return ethcrypto.PubkeyToAddress(*pub)
}
