package accounts

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	"nftlend/core/state"
	"nftlend/crypto"
	"nftlend/storage"
)

func newBook(t *testing.T) (*Book, *events.Recorder) {
	t.Helper()
	book := NewBook()
	book.SetState(state.NewManager(storage.NewMemDB()))
	rec := &events.Recorder{}
	book.SetEmitter(rec)
	return book, rec
}

func keys(t *testing.T, n int) []*crypto.PrivateKey {
	t.Helper()
	out := make([]*crypto.PrivateKey, n)
	for i := range out {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		out[i] = key
	}
	return out
}

func sign(t *testing.T, key *crypto.PrivateKey, digest [32]byte) []byte {
	t.Helper()
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestDeployAndValidate(t *testing.T) {
	book, rec := newBook(t)
	owners := keys(t, 3)
	addrs := []ethcommon.Address{owners[0].Address(), owners[1].Address(), owners[2].Address()}
	creator := ethcommon.HexToAddress("0x01")

	account, err := book.Deploy(creator, addrs, 2, [32]byte{1})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if account.Address != DeriveAddress(creator, addrs, 2, [32]byte{1}) {
		t.Fatalf("address is not deterministic")
	}
	if len(rec.OfType(EventTypeAccountDeployed)) != 1 {
		t.Fatalf("expected deploy event")
	}

	validator, ok, err := book.Lookup(account.Address)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte("offer")))

	one := sign(t, owners[0], digest)
	two := sign(t, owners[2], digest)
	if validator.IsValidSignature(digest, one) {
		t.Fatalf("one of two signatures must not satisfy threshold")
	}
	if !validator.IsValidSignature(digest, append(append([]byte{}, one...), two...)) {
		t.Fatalf("expected two distinct owners to satisfy threshold")
	}
	if validator.IsValidSignature(digest, append(append([]byte{}, one...), one...)) {
		t.Fatalf("duplicate owner signatures must not count twice")
	}
	stranger := sign(t, keys(t, 1)[0], digest)
	if validator.IsValidSignature(digest, append(append([]byte{}, one...), stranger...)) {
		t.Fatalf("non-owner signature must reject the blob")
	}
	if validator.IsValidSignature(digest, one[:64]) {
		t.Fatalf("malformed blob must be rejected")
	}
}

func TestDeployValidation(t *testing.T) {
	book, _ := newBook(t)
	owner := ethcommon.HexToAddress("0x02")
	cases := []struct {
		name      string
		owners    []ethcommon.Address
		threshold uint64
		want      error
	}{
		{name: "zero threshold", owners: []ethcommon.Address{owner}, threshold: 0, want: ErrInvalidThreshold},
		{name: "threshold too high", owners: []ethcommon.Address{owner}, threshold: 2, want: ErrInvalidThreshold},
		{name: "duplicate owner", owners: []ethcommon.Address{owner, owner}, threshold: 1, want: ErrDuplicateOwner},
		{name: "zero owner", owners: []ethcommon.Address{{}}, threshold: 1, want: ErrZeroOwner},
	}
	for _, tc := range cases {
		if _, err := book.Deploy(owner, tc.owners, tc.threshold, [32]byte{}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := book.Deploy(owner, []ethcommon.Address{owner}, 1, [32]byte{9}); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if _, err := book.Deploy(owner, []ethcommon.Address{owner}, 1, [32]byte{9}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, ok, err := book.Lookup(ethcommon.HexToAddress("0x03")); ok || err != nil {
		t.Fatalf("expected unknown address to resolve as key signer, ok=%v err=%v", ok, err)
	}
}
