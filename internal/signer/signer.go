// Package signer creates and verifies HMAC-SHA256 signatures over download URLs.
//
// Signatures are the standard base64 encoding of HMAC-SHA256(secret, url). They
// carry no expiry; a signature is bound only to the exact URL string it was
// computed over.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign returns the base64 HMAC-SHA256 of canonicalURL under secret.
func Sign(secret, canonicalURL string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches canonicalURL under secret.
// Malformed signatures simply fail the comparison.
func Verify(secret, canonicalURL, signature string) bool {
	expected := Sign(secret, canonicalURL)
	return hmac.Equal([]byte(expected), []byte(signature))
}
