// Package wire defines the JSON shapes of offers, signatures and loans. Big
// numbers travel as decimal strings and addresses as 0x hex.
package wire

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/crypto"
	"nftlend/native/coordinator"
	"nftlend/native/loans"
	"nftlend/native/signing"
)

type Offer struct {
	Currency           string   `json:"currency"`
	Principal          string   `json:"principal"`
	MaxRepayment       string   `json:"maxRepayment"`
	CollateralContract string   `json:"collateralContract"`
	CollateralID       string   `json:"collateralId,omitempty"`
	MinCollateralID    string   `json:"minCollateralId,omitempty"`
	MaxCollateralID    string   `json:"maxCollateralId,omitempty"`
	Duration           uint64   `json:"duration"`
	ProRata            bool     `json:"proRata"`
	OriginationFee     string   `json:"originationFee,omitempty"`
	LiquidityCap       string   `json:"liquidityCap,omitempty"`
	AllowedBorrowers   []string `json:"allowedBorrowers,omitempty"`
}

type Signature struct {
	Signer    string `json:"signer"`
	Nonce     string `json:"nonce"`
	Expiry    uint64 `json:"expiry"`
	Signature string `json:"signature"`
}

type Renegotiation struct {
	LoanID          uint64 `json:"loanId"`
	NewDuration     uint64 `json:"newDuration"`
	NewMaxRepayment string `json:"newMaxRepayment"`
	Fee             string `json:"fee,omitempty"`
	NewProRata      bool   `json:"newProRata"`
}

type LoanTerms struct {
	OfferType          string `json:"offerType"`
	Currency           string `json:"currency"`
	Principal          string `json:"principal"`
	MaxRepayment       string `json:"maxRepayment"`
	CollateralContract string `json:"collateralContract"`
	CollateralID       string `json:"collateralId"`
	Lender             string `json:"lender"`
	Borrower           string `json:"borrower"`
	Start              uint64 `json:"start"`
	Duration           uint64 `json:"duration"`
	Maturity           uint64 `json:"maturity"`
	ProRata            bool   `json:"proRata"`
	OriginationFee     string `json:"originationFee"`
	AdminFeeBps        uint64 `json:"adminFeeBps"`
	LockID             uint64 `json:"lockId"`
}

// Loan is the combined view of a loan record and its terms.
type Loan struct {
	LoanID          uint64     `json:"loanId"`
	Status          string     `json:"status"`
	LoanContract    string     `json:"loanContract"`
	Terms           *LoanTerms `json:"terms,omitempty"`
	CurrentLender   string     `json:"currentLender,omitempty"`
	CurrentBorrower string     `json:"currentBorrower,omitempty"`
	Payoff          string     `json:"payoff,omitempty"`
}

// ToOffer parses the JSON offer.
func (o Offer) ToOffer() (signing.Offer, error) {
	var out signing.Offer
	var err error
	if out.Currency, err = address("currency", o.Currency); err != nil {
		return out, err
	}
	if out.CollateralContract, err = address("collateralContract", o.CollateralContract); err != nil {
		return out, err
	}
	if out.Principal, err = amount("principal", o.Principal, true); err != nil {
		return out, err
	}
	if out.MaxRepayment, err = amount("maxRepayment", o.MaxRepayment, true); err != nil {
		return out, err
	}
	if out.CollateralID, err = amount("collateralId", o.CollateralID, false); err != nil {
		return out, err
	}
	if out.MinCollateralID, err = amount("minCollateralId", o.MinCollateralID, false); err != nil {
		return out, err
	}
	if out.MaxCollateralID, err = amount("maxCollateralId", o.MaxCollateralID, false); err != nil {
		return out, err
	}
	if out.OriginationFee, err = amount("originationFee", o.OriginationFee, false); err != nil {
		return out, err
	}
	if out.LiquidityCap, err = amount("liquidityCap", o.LiquidityCap, false); err != nil {
		return out, err
	}
	for i, raw := range o.AllowedBorrowers {
		addr, err := address(fmt.Sprintf("allowedBorrowers[%d]", i), raw)
		if err != nil {
			return out, err
		}
		out.AllowedBorrowers = append(out.AllowedBorrowers, addr)
	}
	out.Duration = o.Duration
	out.ProRata = o.ProRata
	return out, nil
}

// FromOffer renders an offer as JSON.
func FromOffer(o signing.Offer) Offer {
	out := Offer{
		Currency:           o.Currency.Hex(),
		Principal:          decimal(o.Principal),
		MaxRepayment:       decimal(o.MaxRepayment),
		CollateralContract: o.CollateralContract.Hex(),
		CollateralID:       optionalDecimal(o.CollateralID),
		MinCollateralID:    optionalDecimal(o.MinCollateralID),
		MaxCollateralID:    optionalDecimal(o.MaxCollateralID),
		Duration:           o.Duration,
		ProRata:            o.ProRata,
		OriginationFee:     optionalDecimal(o.OriginationFee),
		LiquidityCap:       optionalDecimal(o.LiquidityCap),
	}
	for _, addr := range o.AllowedBorrowers {
		out.AllowedBorrowers = append(out.AllowedBorrowers, addr.Hex())
	}
	return out
}

// ToSignature parses the JSON signature envelope.
func (s Signature) ToSignature() (signing.Signature, error) {
	var out signing.Signature
	var err error
	if out.Signer, err = address("signer", s.Signer); err != nil {
		return out, err
	}
	if out.Nonce, err = amount("nonce", s.Nonce, true); err != nil {
		return out, err
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s.Signature), "0x"), "0X")
	if out.Signature, err = hex.DecodeString(raw); err != nil {
		return out, fmt.Errorf("signature: %w", err)
	}
	out.Expiry = s.Expiry
	return out, nil
}

func FromSignature(s signing.Signature) Signature {
	return Signature{
		Signer:    s.Signer.Hex(),
		Nonce:     decimal(s.Nonce),
		Expiry:    s.Expiry,
		Signature: "0x" + hex.EncodeToString(s.Signature),
	}
}

// ToRenegotiation parses the JSON renegotiation terms.
func (r Renegotiation) ToRenegotiation() (signing.Renegotiation, error) {
	out := signing.Renegotiation{LoanID: r.LoanID, NewDuration: r.NewDuration, NewProRata: r.NewProRata}
	var err error
	if out.NewMaxRepayment, err = amount("newMaxRepayment", r.NewMaxRepayment, true); err != nil {
		return out, err
	}
	if out.Fee, err = amount("fee", r.Fee, false); err != nil {
		return out, err
	}
	if out.Fee == nil {
		out.Fee = new(big.Int)
	}
	return out, nil
}

func FromTerms(t *loans.LoanTerms) *LoanTerms {
	if t == nil {
		return nil
	}
	return &LoanTerms{
		OfferType:          string(t.OfferType),
		Currency:           t.Currency.Hex(),
		Principal:          decimal(t.Principal),
		MaxRepayment:       decimal(t.MaxRepayment),
		CollateralContract: t.CollateralContract.Hex(),
		CollateralID:       decimal(t.CollateralID),
		Lender:             t.Lender.Hex(),
		Borrower:           t.Borrower.Hex(),
		Start:              t.Start,
		Duration:           t.Duration,
		Maturity:           t.Maturity(),
		ProRata:            t.ProRata,
		OriginationFee:     decimal(t.OriginationFee),
		AdminFeeBps:        t.AdminFeeBps,
		LockID:             t.LockID,
	}
}

// FromLoanData starts a Loan view from the coordinator record.
func FromLoanData(loanID uint64, data coordinator.LoanData) Loan {
	return Loan{LoanID: loanID, Status: data.Status.String(), LoanContract: data.LoanContract.Hex()}
}

// ParseAddress accepts hex or bech32 and names field in errors.
func ParseAddress(field, value string) (ethcommon.Address, error) {
	return address(field, value)
}

// ParseAmount parses a non-negative decimal. Empty input is an error.
func ParseAmount(field, value string) (*big.Int, error) {
	return amount(field, value, true)
}

func address(field, value string) (ethcommon.Address, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func amount(field, value string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return nil, fmt.Errorf("%s: value required", field)
		}
		return nil, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid decimal %q", field, value)
	}
	return v, nil
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalDecimal(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
