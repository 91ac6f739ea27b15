package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	"nftlend/native/signing"
)

var (
	ErrNilState           = errors.New("accounts: state not configured")
	ErrInvalidThreshold   = errors.New("accounts: threshold must be between 1 and the owner count")
	ErrDuplicateOwner     = errors.New("accounts: duplicate owner")
	ErrZeroOwner          = errors.New("accounts: owner must not be the zero address")
	ErrAccountExists      = errors.New("accounts: account already deployed")
	ErrTooManyOwners      = errors.New("accounts: too many owners")
	ErrAccountNotDeployed = errors.New("accounts: account not deployed")
)

const (
	maxOwners = 32

	EventTypeAccountDeployed = "accounts.multisig.deployed"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Multisig is a k-of-n programmatic signer.
type Multisig struct {
	Address   ethcommon.Address
	Owners    []ethcommon.Address
	Threshold uint64
	Creator   ethcommon.Address
}

// IsValidSignature accepts a blob of concatenated 65-byte signatures and
// approves the digest once Threshold distinct owners have signed it.
func (m *Multisig) IsValidSignature(digest [32]byte, blob []byte) bool {
	if m == nil || m.Threshold == 0 || len(blob) == 0 || len(blob)%ethcrypto.SignatureLength != 0 {
		return false
	}
	owners := make(map[ethcommon.Address]struct{}, len(m.Owners))
	for _, owner := range m.Owners {
		owners[owner] = struct{}{}
	}
	seen := make(map[ethcommon.Address]struct{})
	for offset := 0; offset < len(blob); offset += ethcrypto.SignatureLength {
		signer := signing.RecoverSigner(digest, blob[offset:offset+ethcrypto.SignatureLength])
		if _, ok := owners[signer]; !ok {
			return false
		}
		seen[signer] = struct{}{}
	}
	return uint64(len(seen)) >= m.Threshold
}

// Book stores deployed programmatic accounts and resolves them for the
// signature verifier.
type Book struct {
	state   engineState
	emitter events.Emitter
}

func NewBook() *Book {
	return &Book{emitter: events.NoopEmitter{}}
}

func (b *Book) SetState(state engineState) { b.state = state }

func (b *Book) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

func accountKey(addr ethcommon.Address) []byte {
	return []byte(fmt.Sprintf("accounts/multisig/%s", addr.Hex()))
}

// DeriveAddress returns the address a deployment would receive.
func DeriveAddress(creator ethcommon.Address, owners []ethcommon.Address, threshold uint64, salt [32]byte) ethcommon.Address {
	buf := make([]byte, 0, 20+32+8+len(owners)*20)
	buf = append(buf, creator.Bytes()...)
	buf = append(buf, salt[:]...)
	buf = binary.BigEndian.AppendUint64(buf, threshold)
	for _, owner := range owners {
		buf = append(buf, owner.Bytes()...)
	}
	return ethcommon.BytesToAddress(ethcrypto.Keccak256([]byte("multisig"), buf)[12:])
}

// Deploy registers a new multisig account.
func (b *Book) Deploy(creator ethcommon.Address, owners []ethcommon.Address, threshold uint64, salt [32]byte) (*Multisig, error) {
	if b.state == nil {
		return nil, ErrNilState
	}
	if len(owners) > maxOwners {
		return nil, ErrTooManyOwners
	}
	if threshold == 0 || threshold > uint64(len(owners)) {
		return nil, ErrInvalidThreshold
	}
	seen := make(map[ethcommon.Address]struct{}, len(owners))
	for _, owner := range owners {
		if owner == (ethcommon.Address{}) {
			return nil, ErrZeroOwner
		}
		if _, dup := seen[owner]; dup {
			return nil, ErrDuplicateOwner
		}
		seen[owner] = struct{}{}
	}
	addr := DeriveAddress(creator, owners, threshold, salt)
	exists, err := b.state.KVGet(accountKey(addr), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAccountExists
	}
	account := &Multisig{
		Address:   addr,
		Owners:    append([]ethcommon.Address(nil), owners...),
		Threshold: threshold,
		Creator:   creator,
	}
	if err := b.state.KVPut(accountKey(addr), account); err != nil {
		return nil, err
	}
	b.emitter.Emit(events.New(EventTypeAccountDeployed).
		With("account", addr.Hex()).
		With("creator", creator.Hex()).
		With("threshold", fmt.Sprintf("%d", threshold)).
		With("owners", fmt.Sprintf("%d", len(owners))))
	return account, nil
}

// Get returns the stored account definition.
func (b *Book) Get(addr ethcommon.Address) (*Multisig, error) {
	if b.state == nil {
		return nil, ErrNilState
	}
	var account Multisig
	ok, err := b.state.KVGet(accountKey(addr), &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotDeployed
	}
	return &account, nil
}

// Lookup implements signing.AccountResolver.
func (b *Book) Lookup(addr ethcommon.Address) (signing.AccountValidator, bool, error) {
	account, err := b.Get(addr)
	if errors.Is(err, ErrAccountNotDeployed) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}
