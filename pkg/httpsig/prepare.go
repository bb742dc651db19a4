package httpsig

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"plume/pkg/federr"
	"plume/pkg/types"
	"plume/pkg/vocab"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "plume"

// SignedDocument is a document canonicalized and signed once, ready to be
// bound to any number of destinations. Its body is shared read-only.
type SignedDocument struct {
	body      []byte
	digest    string
	signer    types.Signer
	userAgent string
	now       func() time.Time
}

// Option customizes Prepare
type Option func(*SignedDocument)

// WithUserAgent sets the User-Agent of every destination's headers
func WithUserAgent(ua string) Option {
	return func(d *SignedDocument) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithClock sets the time source for Date headers and signature creation
func WithClock(now func() time.Time) Option {
	return func(d *SignedDocument) {
		if now != nil {
			d.now = now
		}
	}
}

// Prepare signs document with an embedded linked-data signature and
// serializes it to its canonical text. A failure here leaves no
// destination able to proceed.
func Prepare(document *vocab.Properties, signer types.Signer, opts ...Option) (*SignedDocument, error) {
	if signer == nil {
		return nil, federr.Signature("httpsig.Prepare", errors.New("no signer"))
	}

	d := &SignedDocument{
		signer:    signer,
		userAgent: DefaultUserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	signed := document.Clone()
	if err := SignDocument(signed, signer, d.now()); err != nil {
		return nil, err
	}
	body, err := signed.Canonical()
	if err != nil {
		return nil, err
	}

	d.body = body
	d.digest = Digest(body)
	return d, nil
}

// Body is the canonical text. Callers must not modify it.
func (d *SignedDocument) Body() []byte {
	return d.body
}

// Digest is the Digest header value of Body
func (d *SignedDocument) Digest() string {
	return d.digest
}

// HeadersFor builds the headers of a POST to u, including a Signature
// bound to u's host, path and query
func (d *SignedDocument) HeadersFor(u *url.URL) (http.Header, error) {
	h := DefaultHeaders(d.userAgent, d.now())
	h.Set("Host", u.Host)
	h.Set("Digest", d.digest)

	sig, err := SignRequest(d.signer, http.MethodPost, u, h)
	if err != nil {
		return nil, federr.Signature("httpsig.SignedDocument.HeadersFor", err)
	}
	h.Set("Signature", sig)
	return h, nil
}
