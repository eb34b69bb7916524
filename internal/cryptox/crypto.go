// Package cryptox derives the login verifier from a password. The password
// never leaves the device: the server stores the salt and the verifier, and
// the client keeps both for offline login.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"

	"github.com/simonexmachina/the-work/internal/common"
)

const (
	SaltSize = 32
	KeySize  = 32
)

// argon2id cost parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// NewSalt returns a fresh random salt for a new account.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeySize)
}

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// VerifierFor derives the verifier for password and salt, wiping the
// intermediate key.
func VerifierFor(password []byte, salt []byte) []byte {
	key := DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	return MakeVerifier(key)
}

// CheckPassword reports whether password matches the stored salt and
// verifier. The comparison is constant time.
func CheckPassword(password, salt, verifier []byte) bool {
	if len(salt) == 0 || len(verifier) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(VerifierFor(password, salt), verifier) == 1
}
