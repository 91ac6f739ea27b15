package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"nftlend/crypto"
	"nftlend/gateway/wire"
	"nftlend/native/signing"
)

// offerEnvelope is the body of POST /v1/offers/accept minus the borrower's
// collateral choice.
type offerEnvelope struct {
	OfferType string         `json:"offerType"`
	Offer     wire.Offer     `json:"offer"`
	Signature wire.Signature `json:"signature"`
}

// renegotiationEnvelope is the body of POST /v1/loans/{id}/renegotiate.
type renegotiationEnvelope struct {
	NewDuration     uint64         `json:"newDuration"`
	NewMaxRepayment string         `json:"newMaxRepayment"`
	Fee             string         `json:"fee,omitempty"`
	NewProRata      bool           `json:"newProRata"`
	Signature       wire.Signature `json:"signature"`
}

type signFlags struct {
	keystore string
	passEnv  string
	input    string
	contract string
	chainID  uint64
	nonce    string
	ttl      time.Duration
}

func (f *signFlags) register(fs *flag.FlagSet, inputName, inputUsage string) {
	fs.StringVar(&f.keystore, "keystore", defaultKeystore, "Path to the signer keystore")
	fs.StringVar(&f.passEnv, "pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.StringVar(&f.input, inputName, "", inputUsage)
	fs.StringVar(&f.contract, "contract", "", "Loan contract address the signature is bound to")
	fs.Uint64Var(&f.chainID, "chain-id", 1337, "Chain id the signature is bound to")
	fs.StringVar(&f.nonce, "nonce", "", "Signer nonce")
	fs.DurationVar(&f.ttl, "ttl", time.Hour, "Validity window of the signature")
}

func (f *signFlags) domain() (signing.Domain, error) {
	contract, err := crypto.ParseAddress(f.contract)
	if err != nil {
		return signing.Domain{}, fmt.Errorf("contract: %w", err)
	}
	return signing.Domain{Contract: contract, ChainID: new(big.Int).SetUint64(f.chainID)}, nil
}

func (f *signFlags) expiry(now time.Time) uint64 {
	return uint64(now.Add(f.ttl).Unix())
}

func runSignOffer(args []string, out io.Writer) error {
	var f signFlags
	fs := flag.NewFlagSet("sign-offer", flag.ExitOnError)
	f.register(fs, "offer", "Path to the offer JSON")
	offerType := fs.String("type", string(signing.AssetOffer), "Offer type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := os.ReadFile(f.input)
	if err != nil {
		return err
	}
	domain, err := f.domain()
	if err != nil {
		return err
	}
	nonce, err := wire.ParseAmount("nonce", f.nonce)
	if err != nil {
		return err
	}
	key, err := loadKey(f.keystore, f.passEnv)
	if err != nil {
		return err
	}
	env, err := signOffer(key, raw, *offerType, nonce, f.expiry(time.Now()), domain)
	if err != nil {
		return err
	}
	return writeEnvelope(out, env)
}

func signOffer(key *crypto.PrivateKey, raw []byte, offerType string, nonce *big.Int, expiry uint64, domain signing.Domain) (*offerEnvelope, error) {
	ot, err := signing.ParseOfferType(offerType)
	if err != nil {
		return nil, err
	}
	var in wire.Offer
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	offer, err := in.ToOffer()
	if err != nil {
		return nil, err
	}
	sig, err := signing.SignOffer(key, offer, ot, nonce, expiry, domain)
	if err != nil {
		return nil, err
	}
	return &offerEnvelope{OfferType: string(ot), Offer: wire.FromOffer(offer), Signature: wire.FromSignature(sig)}, nil
}

func runSignRenegotiation(args []string, out io.Writer) error {
	var f signFlags
	fs := flag.NewFlagSet("sign-renegotiation", flag.ExitOnError)
	f.register(fs, "terms", "Path to the renegotiation terms JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := os.ReadFile(f.input)
	if err != nil {
		return err
	}
	domain, err := f.domain()
	if err != nil {
		return err
	}
	nonce, err := wire.ParseAmount("nonce", f.nonce)
	if err != nil {
		return err
	}
	key, err := loadKey(f.keystore, f.passEnv)
	if err != nil {
		return err
	}
	env, err := signRenegotiation(key, raw, nonce, f.expiry(time.Now()), domain)
	if err != nil {
		return err
	}
	return writeEnvelope(out, env)
}

func signRenegotiation(key *crypto.PrivateKey, raw []byte, nonce *big.Int, expiry uint64, domain signing.Domain) (*renegotiationEnvelope, error) {
	var in wire.Renegotiation
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode terms: %w", err)
	}
	terms, err := in.ToRenegotiation()
	if err != nil {
		return nil, err
	}
	sig, err := signing.SignRenegotiation(key, terms, nonce, expiry, domain)
	if err != nil {
		return nil, err
	}
	return &renegotiationEnvelope{
		NewDuration:     terms.NewDuration,
		NewMaxRepayment: terms.NewMaxRepayment.String(),
		Fee:             terms.Fee.String(),
		NewProRata:      terms.NewProRata,
		Signature:       wire.FromSignature(sig),
	}, nil
}

func writeEnvelope(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
