package crypto

import (
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	encoded := EncodeAddress(AccountPrefix, key.Address())
	prefix, decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, AccountPrefix, prefix)
	require.Equal(t, key.Address(), decoded)

	parsed, err := ParseAddress(key.Address().Hex())
	require.NoError(t, err)
	require.Equal(t, key.Address(), parsed)

	parsed, err = ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, key.Address(), parsed)
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "0x1234", "not-an-address"} {
		_, err := ParseAddress(value)
		require.Error(t, err, value)
	}
}

func TestModuleAddressIsStable(t *testing.T) {
	a := ModuleAddress("escrow")
	require.Equal(t, a, ModuleAddress("escrow"))
	require.NotEqual(t, a, ModuleAddress("coordinator"))
	require.NotEqual(t, ethcommon.Address{}, a)
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromHex("0x" + ethcommon.Bytes2Hex(key.Bytes()))
	require.NoError(t, err)
	require.Equal(t, key.Address(), restored.Address())

	_, err = key.Sign([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "lender.json")
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	addr, err := KeystoreAddress(path)
	require.NoError(t, err)
	require.Equal(t, key.Address(), addr)

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
