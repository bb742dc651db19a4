package federation

import (
	"errors"
	"net/url"
	"strings"

	"plume/pkg/types"
	"plume/pkg/vocab"
)

var ErrNotActor = errors.New("entity has no actor layer")

// ActorTarget adapts a decoded actor to a delivery target. It is local
// when its inbox is served by the instance's own domain.
type ActorTarget struct {
	id     types.ID
	actor  *vocab.Actor
	domain string
}

func NewActorTarget(e *vocab.Entity, localDomain string) (*ActorTarget, error) {
	actor, ok := vocab.ExtensionOf[*vocab.Actor](e)
	if !ok {
		return nil, ErrNotActor
	}
	return &ActorTarget{id: e.IntoID(), actor: actor, domain: localDomain}, nil
}

func (t *ActorTarget) IsLocal() bool {
	if t.domain == "" {
		return false
	}
	u, err := url.Parse(t.actor.Inbox)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, t.domain) || strings.EqualFold(u.Hostname(), t.domain)
}

func (t *ActorTarget) InboxURL() string {
	return t.actor.Inbox
}

func (t *ActorTarget) SharedInboxURL() (string, bool) {
	return t.actor.SharedInbox()
}

func (t *ActorTarget) IntoID() types.ID {
	return t.id
}

// StaticTarget is a delivery target known only by its URLs
type StaticTarget struct {
	Inbox       string
	SharedInbox string
	Local       bool
}

func (t StaticTarget) IsLocal() bool    { return t.Local }
func (t StaticTarget) InboxURL() string { return t.Inbox }

func (t StaticTarget) SharedInboxURL() (string, bool) {
	return t.SharedInbox, t.SharedInbox != ""
}
