package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// LegacySHA256 computes the digest the previous panel stored:
// hex(sha256(password + salt)).
func LegacySHA256(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func verifyLegacySHA256(password, storedHash, salt string) (bool, error) {
	if len(storedHash) != sha256.Size*2 {
		return false, ErrInvalidHash
	}
	if _, err := hex.DecodeString(storedHash); err != nil {
		return false, ErrInvalidHash
	}
	computed := LegacySHA256(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1, nil
}
