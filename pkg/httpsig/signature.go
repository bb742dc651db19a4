package httpsig

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plume/pkg/activitypub"
	"plume/pkg/types"
)

// DefaultAlgorithm is advertised for signers that do not name their own
const DefaultAlgorithm = "rsa-sha256"

// RequestTarget is the pseudo-header covering method, path and query
const RequestTarget = "(request-target)"

// SignedHeaders are the components covered by outbound signatures
var SignedHeaders = []string{RequestTarget, "host", "date", "digest"}

// algorithmNamer is implemented by signers whose scheme is not rsa-sha256
type algorithmNamer interface {
	Algorithm() string
}

func algorithmOf(s types.Signer) string {
	if n, ok := s.(algorithmNamer); ok {
		return n.Algorithm()
	}
	return DefaultAlgorithm
}

// DefaultHeaders are the transport headers every delivery carries
func DefaultHeaders(userAgent string, now time.Time) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Date", now.UTC().Format(http.TimeFormat))
	h.Set("Accept", activitypub.AcceptHeader())
	h.Set("Content-Type", activitypub.APContentType)
	return h
}

func requestTarget(method, path, query string) string {
	if path == "" {
		path = "/"
	}
	target := strings.ToLower(method) + " " + path
	if query != "" {
		target += "?" + query
	}
	return target
}

// SigningString builds the newline-separated string covered by the
// signature. Every named header must be present.
func SigningString(method, path, query string, h http.Header, names []string) (string, error) {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(name)
		if name == RequestTarget {
			lines = append(lines, RequestTarget+": "+requestTarget(method, path, query))
			continue
		}
		values := h.Values(name)
		if len(values) == 0 {
			return "", fmt.Errorf("header %q is not present", name)
		}
		lines = append(lines, name+": "+strings.Join(values, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// SignRequest returns the Signature header value for a request to u
// carrying headers h
func SignRequest(signer types.Signer, method string, u *url.URL, h http.Header) (string, error) {
	data, err := SigningString(method, u.EscapedPath(), u.RawQuery, h, SignedHeaders)
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign([]byte(data))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		signer.KeyID(),
		algorithmOf(signer),
		strings.Join(SignedHeaders, " "),
		base64.StdEncoding.EncodeToString(sig)), nil
}
