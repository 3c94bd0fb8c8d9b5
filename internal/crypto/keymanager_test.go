package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	blob, err := EncryptKey(key.String(), "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), key.String())

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptKeyValidation(t *testing.T) {
	_, err := EncryptKey("anything", "")
	assert.ErrorContains(t, err, "password must not be empty")

	_, err = EncryptKey("not-base58-0OIl", "pw")
	assert.ErrorContains(t, err, "invalid base58")

	_, err = EncryptKey("3mJr7AoUXx2Wqd", "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	got, err := LoadKey(KeyConfig{RawPrivateKey: " " + key.String() + "\n"})
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())

	blob, err := EncryptKey(key.String(), "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = LoadKey(KeyConfig{})
	assert.ErrorContains(t, err, "no private key source")
}

func TestSignerSignsTransaction(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	s := NewSigner(key)
	assert.Equal(t, key.PublicKey(), s.PublicKey())

	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(s.PublicKey(), true, true),
	}, []byte{0})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(s.PublicKey()))
	require.NoError(t, err)

	require.NoError(t, s.Sign(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}
