package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters for the file-backed directory
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLength  = 16
	argonKeyLength   = 32
)

// HashSecret derives an argon2id hash from a plain secret, encoded with its
// parameters so VerifySecret can re-derive it later.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifySecret compares a plain secret against an encoded hash in constant
// time.
func VerifySecret(secret, encoded string) (bool, error) {
	var version int
	var memory, iterations uint32
	var parallelism uint8
	var b64Salt, b64Key string
	_, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		&version, &memory, &iterations, &parallelism, &b64Salt)
	if err != nil {
		return false, fmt.Errorf("malformed secret hash")
	}
	// %s consumes the rest of the string, so the trailing salt$key pair is
	// split manually
	for i := 0; i < len(b64Salt); i++ {
		if b64Salt[i] == '$' {
			b64Key = b64Salt[i+1:]
			b64Salt = b64Salt[:i]
			break
		}
	}
	if b64Key == "" {
		return false, fmt.Errorf("malformed secret hash")
	}
	salt, err := base64.RawStdEncoding.DecodeString(b64Salt)
	if err != nil {
		return false, err
	}
	key, err := base64.RawStdEncoding.DecodeString(b64Key)
	if err != nil {
		return false, err
	}
	derived := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, derived) == 1, nil
}
