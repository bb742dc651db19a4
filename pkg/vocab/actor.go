package vocab

import "plume/pkg/types"

// Actor is the ActivityPub actor layer. Only inbox is required.
type Actor struct {
	Inbox             string
	Outbox            *string
	Followers         *string
	Following         *string
	PreferredUsername *string

	// Endpoints is kept whole; SharedInbox reads from it
	Endpoints *Properties
}

func (a *Actor) Decompose(bag *Properties) error {
	if err := required(bag, "inbox", &a.Inbox); err != nil {
		return err
	}
	var err error
	if a.Outbox, err = optional[string](bag, "outbox"); err != nil {
		return err
	}
	if a.Followers, err = optional[string](bag, "followers"); err != nil {
		return err
	}
	if a.Following, err = optional[string](bag, "following"); err != nil {
		return err
	}
	if a.PreferredUsername, err = optional[string](bag, "preferredUsername"); err != nil {
		return err
	}
	a.Endpoints, err = optional[Properties](bag, "endpoints")
	return err
}

func (a *Actor) Compose(bag *Properties) error {
	if err := bag.Insert("inbox", a.Inbox); err != nil {
		return err
	}
	for _, f := range []struct {
		key string
		val *string
	}{
		{"outbox", a.Outbox},
		{"followers", a.Followers},
		{"following", a.Following},
		{"preferredUsername", a.PreferredUsername},
	} {
		if err := insertOptional(bag, f.key, f.val); err != nil {
			return err
		}
	}
	if a.Endpoints != nil {
		return bag.Insert("endpoints", a.Endpoints)
	}
	return nil
}

// SharedInbox returns endpoints.sharedInbox when advertised
func (a *Actor) SharedInbox() (string, bool) {
	if a.Endpoints == nil {
		return "", false
	}
	var s string
	found, err := a.Endpoints.Get("sharedInbox", &s)
	if !found || err != nil || s == "" {
		return "", false
	}
	return s, true
}

// SetSharedInbox records a shared inbox under endpoints
func (a *Actor) SetSharedInbox(u string) error {
	if a.Endpoints == nil {
		a.Endpoints = NewProperties()
	}
	return a.Endpoints.Set("sharedInbox", u)
}

// NewPerson builds a Person actor carrying its public key
func NewPerson(id types.ID, inbox string, key PublicKey) *Entity {
	e := NewEntity("Person", &Actor{Inbox: inbox}, &ApSignature{PublicKey: key})
	e.Base.ID = id
	return e
}

// NewGroup builds a Group actor carrying its public key and source
func NewGroup(id types.ID, inbox string, key PublicKey, source Source) *Entity {
	e := NewEntity("Group", &Actor{Inbox: inbox}, &ApSignature{PublicKey: key}, &ActorSource{Source: source})
	e.Base.ID = id
	return e
}

// NewLicensedArticle builds an Article with a license
func NewLicensedArticle(id types.ID, license string) *Entity {
	e := NewEntity("Article", &Licensed{License: license})
	e.Base.ID = id
	return e
}

func DecodePerson(data []byte) (*Entity, error) {
	return Decode(data, &Actor{}, &ApSignature{})
}

func DecodeGroup(data []byte) (*Entity, error) {
	return Decode(data, &Actor{}, &ApSignature{}, &ActorSource{})
}

func DecodeLicensedArticle(data []byte) (*Entity, error) {
	return Decode(data, &Licensed{})
}

func DecodeHashtag(data []byte) (*Entity, error) {
	return Decode(data, &Hashtag{})
}
