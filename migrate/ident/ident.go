// Package ident produces migration identifiers and content checksums.
package ident

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a migration identifier that sorts lexicographically in
// creation order: the millisecond epoch timestamp followed by four random
// bytes hex-encoded, so ids minted within the same instant stay distinct.
func NewID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand only fails when the OS entropy source is broken; the
		// nanosecond clock still keeps rapid successive ids apart.
		return fmt.Sprintf("%d%08x", time.Now().UnixMilli(), uint32(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%d%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}

// Checksum returns the SHA-256 digest of the exact SQL bytes, hex-encoded.
// It guards integrity, not secrecy.
func Checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
