// Package crypto implements admin password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (modest: the kiosk is a small single-board machine).
const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 32 * 1024 // 32 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

const hashPrefix = "argon2id"

// HashPassword returns a self-contained encoded hash
// ("argon2id$<salt>$<digest>", both parts base64) suitable for storing in
// the kiosk configuration.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hashPrefix + "$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(digest), nil
}

// VerifyPassword checks a password against an encoded hash in constant time.
func VerifyPassword(password, encoded string) bool {
	salt, digest, err := decode(encoded)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, digest) == 1
}

func decode(encoded string) (salt, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashPrefix {
		return nil, nil, errors.New("malformed password hash")
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[1]); err != nil {
		return nil, nil, err
	}
	if digest, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return nil, nil, err
	}
	return salt, digest, nil
}
