package keystore

import (
	"testing"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useLightScrypt(t *testing.T) {
	t.Helper()
	origN, origP := scryptN, scryptP
	scryptN, scryptP = gethkeystore.LightScryptN, gethkeystore.LightScryptP
	t.Cleanup(func() { scryptN, scryptP = origN, origP })
}

func TestGenerateDecryptRoundTrip(t *testing.T) {
	useLightScrypt(t)

	address, blob, err := Generate("pa55word")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	key, err := Decrypt(blob, "pa55word")
	require.NoError(t, err)
	assert.Equal(t, address, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	useLightScrypt(t)

	_, blob, err := Generate("right")
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong")
	assert.Error(t, err)
}

func TestImportKnownKey(t *testing.T) {
	useLightScrypt(t)

	// Well-known dev-chain key, safe to embed.
	const pkHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	const wantAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	address, blob, err := Import(pkHex, "pw")
	require.NoError(t, err)
	assert.Equal(t, wantAddress, address)

	key, err := Decrypt(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, wantAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestImportRejectsGarbage(t *testing.T) {
	_, _, err := Import("zz-not-a-key", "pw")
	assert.Error(t, err)
}
