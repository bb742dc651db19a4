package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNoSignature    = errors.New("request carries no Signature header")
	ErrMalformed      = errors.New("malformed Signature header")
	ErrBadSignature   = errors.New("signature verification failed")
	ErrUnsupportedKey = errors.New("unsupported public key type")
)

// Parameters are the fields of a parsed Signature header
type Parameters struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// ParseSignature parses a Signature header value of comma-separated
// name="value" pairs
func ParseSignature(value string) (*Parameters, error) {
	fields := make(map[string]string)
	rest := strings.TrimSpace(value)
	for rest != "" {
		name, after, ok := strings.Cut(rest, "=")
		if !ok || !strings.HasPrefix(after, `"`) {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, rest)
		}
		end := strings.IndexByte(after[1:], '"')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated value for %q", ErrMalformed, name)
		}
		fields[strings.ToLower(strings.TrimSpace(name))] = after[1 : end+1]
		rest = strings.TrimSpace(after[end+2:])
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ","))
	}

	p := &Parameters{
		KeyID:     fields["keyid"],
		Algorithm: fields["algorithm"],
		Headers:   []string{"date"},
	}
	if p.KeyID == "" {
		return nil, fmt.Errorf("%w: missing keyId", ErrMalformed)
	}
	if h := fields["headers"]; h != "" {
		p.Headers = strings.Fields(strings.ToLower(h))
	}
	sig, err := base64.StdEncoding.DecodeString(fields["signature"])
	if err != nil || len(sig) == 0 {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrMalformed)
	}
	p.Signature = sig
	return p, nil
}

// Covers reports whether the signature covers the named component
func (p *Parameters) Covers(name string) bool {
	for _, h := range p.Headers {
		if h == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// VerifyRequest checks the Signature header of r against pub and returns
// the parsed parameters on success
func VerifyRequest(r *http.Request, pub crypto.PublicKey) (*Parameters, error) {
	value := r.Header.Get("Signature")
	if value == "" {
		return nil, ErrNoSignature
	}
	p, err := ParseSignature(value)
	if err != nil {
		return nil, err
	}

	h := r.Header.Clone()
	h.Set("Host", r.Host)
	data, err := SigningString(r.Method, r.URL.EscapedPath(), r.URL.RawQuery, h, p.Headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := Verify(pub, []byte(data), p.Signature); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify checks sig over data. The scheme follows the key type.
func Verify(pub crypto.PublicKey, data, sig []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(k, data, sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}
