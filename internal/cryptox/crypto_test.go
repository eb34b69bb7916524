package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)
	require.True(t, bytes.Equal(key1, key2))
	require.Len(t, key1, KeySize)

	// snapshot of the argon2id parameters in use
	require.Equal(t, "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39", hex.EncodeToString(key1))
}

func TestDeriveMasterKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")
	require.NotEqual(t, DeriveMasterKey(password, []byte("salt-1")), DeriveMasterKey(password, []byte("salt-2")))
}

func TestVerifierFor_MatchesManualDerivation(t *testing.T) {
	password := []byte("pw")
	salt := []byte("salt")
	require.Equal(t, MakeVerifier(DeriveMasterKey(password, salt)), VerifierFor(password, salt))
}

func TestCheckPassword(t *testing.T) {
	salt := NewSalt()
	require.Len(t, salt, SaltSize)
	verifier := VerifierFor([]byte("correct"), salt)

	require.True(t, CheckPassword([]byte("correct"), salt, verifier))
	require.False(t, CheckPassword([]byte("wrong"), salt, verifier))
	require.False(t, CheckPassword([]byte("correct"), nil, verifier))
	require.False(t, CheckPassword([]byte("correct"), salt, nil))
}

func TestNewSalt_Random(t *testing.T) {
	require.NotEqual(t, NewSalt(), NewSalt())
}
