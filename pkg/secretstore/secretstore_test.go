package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func openMem(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := Open(OpenOptions{InMemory: true, EncryptionKey: key})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_StringRoundTripAndNotFound(t *testing.T) {
	s := openMem(t)

	_, err := s.GetString("relayer/api_key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetString("relayer/api_key", ""))
	v, err := s.GetString("relayer/api_key")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	_, err = s.GetString("  ")
	assert.Error(t, err)
}

func TestStore_PrivateKey(t *testing.T) {
	s := openMem(t)

	addr, err := s.PutPrivateKey("0x" + testKeyHex)
	require.NoError(t, err)

	expected, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(expected.PublicKey), addr)

	key, err := s.PrivateKey(addr)
	require.NoError(t, err)
	assert.Equal(t, expected.D, key.D)

	_, err = s.PrivateKey(common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b, err := ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b64 := base64.StdEncoding.EncodeToString(make([]byte, 32))
	b, err = ParseKey(b64)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
