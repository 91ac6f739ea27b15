// Package coretest builds a fully wired in-memory node for protocol tests.
package coretest

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core"
	"nftlend/core/events"
	"nftlend/crypto"
	"nftlend/native/escrow"
	"nftlend/native/signing"
	"nftlend/storage"
)

// GenesisTime is the clock value every harness starts at.
const GenesisTime int64 = 1_700_000_000

var (
	Currency      = ethcommon.HexToAddress("0x00000000000000000000000000000000000c0001")
	OtherCurrency = ethcommon.HexToAddress("0x00000000000000000000000000000000000c0002")
	Collection    = ethcommon.HexToAddress("0x0000000000000000000000000000000000a70001")
	Punks         = ethcommon.HexToAddress("0x0000000000000000000000000000000000a70002")
)

// Actor is a test participant with a signing key.
type Actor struct {
	Key     *crypto.PrivateKey
	Address ethcommon.Address
}

// Harness owns a node over MemDB with a controllable clock.
type Harness struct {
	t        testing.TB
	Node     *core.Node
	Owner    Actor
	Recorder *events.Recorder
	now      int64
}

// New builds a harness. mutate may adjust the node config before wiring.
func New(t testing.TB, mutate ...func(*core.Config)) *Harness {
	t.Helper()
	h := &Harness{t: t, now: GenesisTime, Recorder: &events.Recorder{}}
	h.Owner = h.NewActor()
	cfg := core.Config{
		ChainID:         big.NewInt(1337),
		Owner:           h.Owner.Address,
		MaxLoanDuration: 365 * 24 * 60 * 60,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), cfg, logger)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetNowFunc(func() int64 { return h.now })
	node.Subscribe(h.Recorder)
	h.Node = node

	_, err = node.ApplyGenesis(core.Genesis{
		AssetTypes: []core.AssetType{
			{Tag: "ERC721", Wrapper: escrow.WrapperERC721},
			{Tag: "PUNK", Wrapper: escrow.WrapperPunks},
		},
		Collaterals: []core.Collateral{
			{Contract: Collection, Tag: "ERC721"},
			{Contract: Punks, Tag: "PUNK"},
		},
		Currencies: []ethcommon.Address{Currency, OtherCurrency},
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return h
}

// NewActor generates a fresh key pair.
func (h *Harness) NewActor() Actor {
	h.t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		h.t.Fatalf("generate key: %v", err)
	}
	return Actor{Key: key, Address: key.Address()}
}

// Now returns the harness clock.
func (h *Harness) Now() int64 { return h.now }

// Advance moves the clock forward.
func (h *Harness) Advance(seconds int64) { h.now += seconds }

// Must fails the test on error.
func (h *Harness) Must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

// Exec runs fn as one node operation.
func (h *Harness) Exec(fn func() error) error {
	return h.Node.Execute("test", fn)
}

// Fund mints amount of currency to holder.
func (h *Harness) Fund(currency, holder ethcommon.Address, amount int64) {
	h.t.Helper()
	h.Must(h.Exec(func() error {
		return h.Node.Bank().Mint(currency, holder, big.NewInt(amount))
	}))
}

// Approve lets spender pull amount of owner's currency.
func (h *Harness) Approve(currency, owner, spender ethcommon.Address, amount int64) {
	h.t.Helper()
	h.Must(h.Exec(func() error {
		return h.Node.Bank().Approve(currency, owner, spender, big.NewInt(amount))
	}))
}

// Balance reads a currency balance.
func (h *Harness) Balance(currency, holder ethcommon.Address) *big.Int {
	h.t.Helper()
	bal, err := h.Node.Bank().Balance(currency, holder)
	h.Must(err)
	return bal
}

// MintNFT gives owner token id of the ERC-721 test collection.
func (h *Harness) MintNFT(owner ethcommon.Address, id int64) escrow.Asset {
	h.t.Helper()
	asset := escrow.Asset{Contract: Collection, TokenID: big.NewInt(id)}
	h.Must(h.Exec(func() error {
		return h.Node.MintCollateral(core.Token{Contract: Collection, ID: asset.TokenID, Owner: owner, Standard: escrow.WrapperERC721})
	}))
	return asset
}

// OwnerOf reads an ERC-721 owner.
func (h *Harness) OwnerOf(asset escrow.Asset) ethcommon.Address {
	h.t.Helper()
	owner, err := h.Node.NFTs().OwnerOf(asset.Contract, asset.TokenID)
	h.Must(err)
	return owner
}

// GrantCustody approves the escrow to take asset from holder.
func (h *Harness) GrantCustody(holder ethcommon.Address, asset escrow.Asset) {
	h.t.Helper()
	h.Must(h.Exec(func() error {
		return h.Node.Escrow().GrantCustody(holder, asset)
	}))
}

// Offer returns a one-day offer for the test collection.
func Offer(principal, maxRepayment int64, collateralID int64) signing.Offer {
	return signing.Offer{
		Currency:           Currency,
		Principal:          big.NewInt(principal),
		MaxRepayment:       big.NewInt(maxRepayment),
		CollateralContract: Collection,
		CollateralID:       big.NewInt(collateralID),
		Duration:           24 * 60 * 60,
	}
}

// Sign signs offer for the loan contract of offerType with an expiry one
// hour ahead.
func (h *Harness) Sign(lender Actor, offerType signing.OfferType, offer signing.Offer, nonce int64) signing.Signature {
	h.t.Helper()
	contract, err := h.Node.LoanContract(offerType)
	h.Must(err)
	sig, err := signing.SignOffer(lender.Key, offer, offerType, big.NewInt(nonce), uint64(h.now+3600), contract.Verifier().Domain())
	h.Must(err)
	return sig
}

// Originate funds lender, approves everything a borrower and lender need and
// accepts offer. It returns the new loan id.
func (h *Harness) Originate(borrower, lender Actor, offerType signing.OfferType, offer signing.Offer, nonce int64, collateralID int64) uint64 {
	h.t.Helper()
	contract, err := h.Node.LoanContract(offerType)
	h.Must(err)
	asset := escrow.Asset{Contract: offer.CollateralContract, TokenID: big.NewInt(collateralID)}
	h.GrantCustody(borrower.Address, asset)
	h.Fund(offer.Currency, lender.Address, offer.Principal.Int64())
	h.Approve(offer.Currency, lender.Address, contract.Address(), offer.Principal.Int64())
	sig := h.Sign(lender, offerType, offer, nonce)

	var loanID uint64
	h.Must(h.Exec(func() error {
		var err error
		loanID, err = contract.AcceptOffer(borrower.Address, offer, sig, big.NewInt(collateralID))
		return err
	}))
	return loanID
}
