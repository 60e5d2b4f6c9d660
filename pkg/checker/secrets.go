package checker

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// VerifyClientSecret checks a presented secret against a client's stored
// digests. Each digest is tried in turn so secret rotation keeps the
// previous secret valid until it is dropped from the list.
//
// Three digest forms are recognized: bcrypt (current), hex SHA-256 (legacy
// rows from the previous schema), and plaintext. Plaintext comparison is
// only honored when allowPlaintext is set, which production configuration
// never does.
func VerifyClientSecret(secret string, hashes []string, allowPlaintext bool) bool {
	if secret == "" {
		return false
	}

	for _, hash := range hashes {
		if hash == "" {
			continue
		}
		switch {
		case strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$"):
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil {
				return true
			}
		case isHexSHA256(hash):
			sum := sha256.Sum256([]byte(secret))
			if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hash))) == 1 {
				return true
			}
		default:
			if allowPlaintext && subtle.ConstantTimeCompare([]byte(hash), []byte(secret)) == 1 {
				return true
			}
		}
	}

	return false
}

// HashClientSecret produces the bcrypt digest stored for new secrets
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
