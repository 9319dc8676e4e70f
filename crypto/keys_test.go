package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	digest := Keccak256([]byte("accept offer 7"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)

	signer, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.Address(), signer)

	sig[64] += 27
	signer, err = RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.Address(), signer)

	_, err = RecoverAddress(digest, sig[:10])
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), addr[19])

	_, err = ParseAddress("0x1234")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestModuleAddressIsStable(t *testing.T) {
	require.Equal(t, ModuleAddress("lending"), ModuleAddress(" lending "))
	require.NotEqual(t, ModuleAddress("lending"), ModuleAddress("claims"))
}

func TestKeystoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(dir, KeyFileName(key.Address()))
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	loaded, err := LoadAccount(dir, key.Address(), "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadAccount(dir, key.Address(), "wrong")
	require.Error(t, err)
}
