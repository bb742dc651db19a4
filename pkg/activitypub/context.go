// Package activitypub holds the protocol surface shared by inbound and
// outbound federation: the canonical JSON-LD context, the envelope that
// injects it, and Accept-header negotiation.
package activitypub

import "strings"

const (
	ContextURL         = "https://www.w3.org/ns/activitystreams"
	SecurityContextURL = "https://w3id.org/security/v1"
	PublicVisibility   = "https://www.w3.org/ns/activitystreams#Public"

	// APContentType is the profile-qualified JSON-LD media type
	APContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// ActivityJSONContentType marks rendered documents
	ActivityJSONContentType = "application/activity+json"
)

var acceptMediaTypes = []string{
	`application/ld+json; profile="https://w3.org/ns/activitystreams"`,
	`application/ld+json;profile="https://w3.org/ns/activitystreams"`,
	"application/activity+json",
	"application/ld+json",
}

// AcceptMediaTypes lists the media ranges recognized as protocol requests
func AcceptMediaTypes() []string {
	out := make([]string, len(acceptMediaTypes))
	copy(out, acceptMediaTypes)
	return out
}

// AcceptHeader is the Accept value sent on outbound requests
func AcceptHeader() string {
	return strings.Join(acceptMediaTypes, ", ")
}

// Context returns a fresh copy of the canonical @context
func Context() []any {
	return []any{
		ContextURL,
		SecurityContextURL,
		map[string]any{
			"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
			"sensitive":                 "as:sensitive",
			"movedTo":                   "as:movedTo",
			"Hashtag":                   "as:Hashtag",
			"ostatus":                   "http://ostatus.org#",
			"atomUri":                   "ostatus:atomUri",
			"inReplyToAtomUri":          "ostatus:inReplyToAtomUri",
			"conversation":              "ostatus:conversation",
			"toot":                      "http://joinmastodon.org/ns#",
			"Emoji":                     "toot:Emoji",
			"focalPoint": map[string]any{
				"@container": "@list",
				"@id":        "toot:focalPoint",
			},
			"featured": "toot:featured",
		},
	}
}
