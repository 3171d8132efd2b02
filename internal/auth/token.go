// Package auth is the credential store: opaque bearer tokens for telemetry
// gateways. Tokens are high-entropy random secrets, so a fast one-way digest
// is the right hash; slow password hashing would only tax the ingestion hot
// path. The plaintext is returned exactly once at generation time and never
// persisted or logged.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenPrefix makes generated tokens recognizable in configs and audit logs.
const TokenPrefix = "wct_"

const tokenRandomBytes = 24

// GenerateToken produces a new high-entropy bearer token.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of the token. Only this digest is
// ever stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MaskToken renders a token for audit display, revealing only a short prefix
// and suffix.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// Compare checks two token hashes in constant time.
func Compare(providedHash, storedHash string) bool {
	if providedHash == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
