package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSeed(testSeedHex, "hunter2")
	require.NoError(t, err)

	seed, err := DecryptSeed(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeedHex, hex.EncodeToString(seed))

	// Fresh salt and nonce every time.
	blob2, err := EncryptSeed(testSeedHex, "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, blob, blob2)
}

func TestDecryptSeedRejectsWrongPassword(t *testing.T) {
	blob, err := EncryptSeed(testSeedHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptSeed(blob, "letmein")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestDecryptSeedRejectsBadBlob(t *testing.T) {
	_, err := DecryptSeed([]byte("not json"), "pw")
	require.Error(t, err)

	_, err = DecryptSeed([]byte(`{"version": 9}`), "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported key version")
}

func TestEncryptSeedValidation(t *testing.T) {
	_, err := EncryptSeed(testSeedHex, "")
	require.Error(t, err)

	_, err = EncryptSeed("abcd", "pw")
	require.Error(t, err, "short seeds are rejected")

	_, err = EncryptSeed("zz"+testSeedHex[2:], "pw")
	require.Error(t, err, "non-hex seeds are rejected")
}

func TestLoadSeed(t *testing.T) {
	t.Run("RawSeedWins", func(t *testing.T) {
		seed, err := LoadSeed(KeyConfig{RawSeed: testSeedHex, EncryptedKeyPath: "/nonexistent"})
		require.NoError(t, err)
		assert.Len(t, seed, 32)
	})

	t.Run("RawSeedWith0xPrefix", func(t *testing.T) {
		seed, err := LoadSeed(KeyConfig{RawSeed: "0x" + testSeedHex})
		require.NoError(t, err)
		assert.Equal(t, testSeedHex, hex.EncodeToString(seed))
	})

	t.Run("EncryptedFile", func(t *testing.T) {
		blob, err := EncryptSeed(testSeedHex, "hunter2")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "authority.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		seed, err := LoadSeed(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
		require.NoError(t, err)
		assert.Equal(t, testSeedHex, hex.EncodeToString(seed))
	})

	t.Run("NoSourceConfigured", func(t *testing.T) {
		_, err := LoadSeed(KeyConfig{})
		require.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadSeed(KeyConfig{EncryptedKeyPath: filepath.Join(t.TempDir(), "gone.json"), KeyPassword: "pw"})
		require.Error(t, err)
	})
}

func TestSignerSignAndVerify(t *testing.T) {
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	s := NewSigner(seed)

	assert.NotEmpty(t, s.PublicKey())

	msg := []byte("resolve|m1|yes")
	sig := s.SignBase58(msg)
	assert.True(t, s.Verify(msg, sig))
	assert.False(t, s.Verify([]byte("resolve|m1|no"), sig))
	assert.False(t, s.Verify(msg, "!!!not-base58!!!"))

	// Deterministic: ed25519 signatures over the same message are stable.
	assert.Equal(t, sig, s.SignBase58(msg))

	// Same seed, same keypair.
	assert.Equal(t, s.PublicKey(), NewSigner(seed).PublicKey())
}

func TestSignerPublicKeyIsBase58(t *testing.T) {
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	pub := NewSigner(seed).PublicKey()
	assert.False(t, strings.ContainsAny(pub, "0OIl+/"), "base58 alphabet excludes ambiguous characters")
}
