package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering addresses.
type AddressPrefix string

const (
	// AccountPrefix marks externally owned and smart account addresses.
	AccountPrefix AddressPrefix = "nft"
	// ModulePrefix marks addresses owned by protocol components.
	ModulePrefix AddressPrefix = "nftmod"
)

var errInvalidAddress = errors.New("crypto: invalid address")

// EncodeAddress renders a 20-byte address as bech32 under the given prefix.
func EncodeAddress(prefix AddressPrefix, addr ethcommon.Address) string {
	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 address and returns its prefix and payload.
func DecodeAddress(addrStr string) (AddressPrefix, ethcommon.Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return "", ethcommon.Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return "", ethcommon.Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != ethcommon.AddressLength {
		return "", ethcommon.Address{}, errInvalidAddress
	}
	return AddressPrefix(prefix), ethcommon.BytesToAddress(conv), nil
}

// ParseAddress accepts either a 0x-prefixed hex address or a bech32 address.
func ParseAddress(value string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ethcommon.Address{}, errInvalidAddress
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !ethcommon.IsHexAddress(trimmed) {
			return ethcommon.Address{}, errInvalidAddress
		}
		return ethcommon.HexToAddress(trimmed), nil
	}
	_, addr, err := DecodeAddress(trimmed)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return addr, nil
}

// ModuleAddress derives the stable address of a named protocol component.
func ModuleAddress(name string) ethcommon.Address {
	digest := crypto.Keccak256([]byte("nftlend/module/" + name))
	return ethcommon.BytesToAddress(digest[12:])
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account address controlled by the key.
func (k *PrivateKey) Address() ethcommon.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	return crypto.Sign(digest, k.PrivateKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex decodes a hex encoded secp256k1 key, with or without 0x.
func PrivateKeyFromHex(value string) (*PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}
