package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the canonical form
// to change without colliding with older records.
const (
	DomainTick   = "quadlane/tick/v1"
	DomainConfig = "quadlane/config/v1"
)

// Digest computes SHA-256 over the canonical form of v with domain
// separation and a salt:
//
//	SHA256(domain || 0x00 || salt || 0x00 || canonical(v))
//
// The null separators keep domain, salt and payload boundaries unambiguous.
func Digest(domain, salt string, v IRValue) ([]byte, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, salt, canonical), nil
}

// HexDigest is Digest encoded as lowercase hex (64 characters).
func HexDigest(domain, salt string, v IRValue) (string, error) {
	sum, err := Digest(domain, salt, v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

func hashWithDomain(domain, salt string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(salt))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}
