package signing

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var errWordOverflow = errors.New("signing: value does not fit in 256 bits")

var renegotiationTag = ethcrypto.Keccak256([]byte("RENEGOTIATION"))

// Domain binds digests to one verifying contract on one chain.
type Domain struct {
	Contract ethcommon.Address
	ChainID  *big.Int
}

type packer struct {
	buf []byte
	err error
}

func (p *packer) bytes(b []byte) {
	p.buf = append(p.buf, b...)
}

func (p *packer) address(addr ethcommon.Address) {
	p.buf = append(p.buf, addr.Bytes()...)
}

func (p *packer) word(v *big.Int) {
	if p.err != nil {
		return
	}
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		p.err = errWordOverflow
		return
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		p.err = errWordOverflow
		return
	}
	w := u.Bytes32()
	p.buf = append(p.buf, w[:]...)
}

func (p *packer) uint(v uint64) {
	w := uint256.NewInt(v).Bytes32()
	p.buf = append(p.buf, w[:]...)
}

func (p *packer) flag(b bool) {
	if b {
		p.buf = append(p.buf, 1)
		return
	}
	p.buf = append(p.buf, 0)
}

func (p *packer) envelope(sig Signature, domain Domain) {
	p.address(sig.Signer)
	p.word(sig.Nonce)
	p.uint(sig.Expiry)
	p.address(domain.Contract)
	p.word(domain.ChainID)
}

// digest applies the EIP-191 personal message prefix to keccak256(payload).
func (p *packer) digest() ([32]byte, error) {
	var out [32]byte
	if p.err != nil {
		return out, p.err
	}
	inner := ethcrypto.Keccak256(p.buf)
	copy(out[:], accounts.TextHash(inner))
	return out, nil
}

// OfferDigest is the hash a lender signs for an offer of the given taxonomy.
func OfferDigest(offer Offer, sig Signature, offerType OfferType, domain Domain) ([32]byte, error) {
	tag := offerType.Tag()
	p := &packer{}
	p.bytes(tag[:])
	p.address(offer.Currency)
	p.word(offer.Principal)
	p.word(offer.MaxRepayment)
	p.address(offer.CollateralContract)
	p.word(offer.CollateralID)
	p.word(offer.MinCollateralID)
	p.word(offer.MaxCollateralID)
	p.uint(offer.Duration)
	p.flag(offer.ProRata)
	p.word(offer.OriginationFee)
	p.word(offer.LiquidityCap)
	borrowers := make([]byte, 0, len(offer.AllowedBorrowers)*ethcommon.AddressLength)
	for _, b := range offer.AllowedBorrowers {
		borrowers = append(borrowers, b.Bytes()...)
	}
	p.bytes(ethcrypto.Keccak256(borrowers))
	p.envelope(sig, domain)
	return p.digest()
}

// RenegotiationDigest is the hash a lender signs to revise an active loan.
func RenegotiationDigest(r Renegotiation, sig Signature, domain Domain) ([32]byte, error) {
	p := &packer{}
	p.bytes(renegotiationTag)
	p.uint(r.LoanID)
	p.uint(r.NewDuration)
	p.flag(r.NewProRata)
	p.word(r.NewMaxRepayment)
	p.word(r.Fee)
	p.envelope(sig, domain)
	return p.digest()
}
