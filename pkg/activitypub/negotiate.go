package activitypub

import (
	"context"
	"net/http"
	"strings"
)

// Outcome is the result of Accept negotiation, ranked from weakest to
// strongest.
type Outcome int

const (
	Unresolved Outcome = iota
	// ForwardOther sends the request to the human-readable path without
	// knowing what the client wants
	ForwardOther
	// ForwardHTML sends it there knowing the client asked for HTML
	ForwardHTML
	// Protocol accepts the request as a structured-protocol request
	Protocol
)

func (o Outcome) String() string {
	switch o {
	case ForwardOther:
		return "forward_other"
	case ForwardHTML:
		return "forward_html"
	case Protocol:
		return "protocol"
	default:
		return "unresolved"
	}
}

// IsProtocol reports whether the request asked for protocol documents
func (o Outcome) IsProtocol() bool {
	return o == Protocol
}

// Forward returns the routing hint for the human-readable path. ok is
// false for protocol requests.
func (o Outcome) Forward() (html bool, ok bool) {
	switch o {
	case Protocol:
		return false, false
	case ForwardHTML:
		return true, true
	default:
		return false, true
	}
}

// Negotiate classifies an Accept header value. Every media range is
// scanned; a protocol range anywhere wins over text/html earlier in the
// header, and an absent or unrecognized header forwards with no hint.
func Negotiate(accept string) Outcome {
	best := Unresolved
	for _, mr := range strings.Split(accept, ",") {
		switch rank := rankMediaRange(strings.TrimSpace(mr)); {
		case rank == Protocol:
			return Protocol
		case rank > best:
			best = rank
		}
	}
	// Split yields at least one range, so best is never Unresolved here
	return best
}

func rankMediaRange(mr string) Outcome {
	for _, t := range acceptMediaTypes {
		if mr == t {
			return Protocol
		}
	}
	if mr == "text/html" {
		return ForwardHTML
	}
	return ForwardOther
}

// NegotiateRequest negotiates on every Accept header line of r
func NegotiateRequest(r *http.Request) Outcome {
	return Negotiate(strings.Join(r.Header.Values("Accept"), ","))
}

type forwardKey struct{}

// ForwardHint returns the hint stored by Negotiator for forwarded requests
func ForwardHint(ctx context.Context) (html bool, ok bool) {
	html, ok = ctx.Value(forwardKey{}).(bool)
	return html, ok
}

// Negotiator routes protocol requests to Protocol and everything else to
// Forward, carrying the HTML hint in the request context.
type Negotiator struct {
	Protocol http.Handler
	Forward  http.Handler

	// Observe, if set, is told about every decision
	Observe func(Outcome)
}

func (n *Negotiator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outcome := NegotiateRequest(r)
	if n.Observe != nil {
		n.Observe(outcome)
	}

	if outcome.IsProtocol() {
		n.Protocol.ServeHTTP(w, r)
		return
	}

	if n.Forward == nil {
		http.NotFound(w, r)
		return
	}
	html, _ := outcome.Forward()
	n.Forward.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), forwardKey{}, html)))
}
