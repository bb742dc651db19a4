// Package httpsig signs outbound deliveries: the body digest, the HTTP
// Signature header bound to each destination, and the linked-data signature
// embedded in the document itself.
package httpsig

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DigestAlgorithm is the algorithm token of the Digest header
const DigestAlgorithm = "SHA-256"

var ErrDigestMismatch = errors.New("digest does not match body")

// Digest returns the Digest header value for body
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return DigestAlgorithm + "=" + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyDigest checks a Digest header against body. Only SHA-256 entries
// are checked; at least one must be present and match.
func VerifyDigest(header string, body []byte) error {
	want := Digest(body)
	seen := false
	for _, entry := range strings.Split(header, ",") {
		alg, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || !strings.EqualFold(alg, DigestAlgorithm) {
			continue
		}
		seen = true
		got := DigestAlgorithm + "=" + value
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return nil
		}
	}
	if !seen {
		return fmt.Errorf("no %s entry in Digest header", DigestAlgorithm)
	}
	return ErrDigestMismatch
}
