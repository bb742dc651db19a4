package vocab

import (
	"encoding/json"
	"net/url"
)

// Licensed attaches a license to an article
type Licensed struct {
	License string
}

func (l *Licensed) Decompose(bag *Properties) error {
	return required(bag, "license", &l.License)
}

func (l *Licensed) Compose(bag *Properties) error {
	return bag.Insert("license", l.License)
}

// Hashtag is a tag object; both fields are optional
type Hashtag struct {
	Href *string
	Name *string
}

func (h *Hashtag) Decompose(bag *Properties) error {
	var err error
	if h.Href, err = optional[string](bag, "href"); err != nil {
		return err
	}
	h.Name, err = optional[string](bag, "name")
	return err
}

func (h *Hashtag) Compose(bag *Properties) error {
	if err := insertOptional(bag, "href", h.Href); err != nil {
		return err
	}
	return insertOptional(bag, "name", h.Name)
}

// FirstString returns the first string of a one-or-many property
func FirstString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err != nil || len(many) == 0 {
		return "", false
	}
	return FirstString(many[0])
}

// FirstURI returns the first absolute URI of a one-or-many property. Linked
// objects contribute their id, links their href.
func FirstURI(raw json.RawMessage) (string, bool) {
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err == nil {
		if len(many) == 0 {
			return "", false
		}
		return FirstURI(many[0])
	}

	var candidate string
	if err := json.Unmarshal(raw, &candidate); err != nil {
		var obj struct {
			ID   string `json:"id"`
			Href string `json:"href"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", false
		}
		candidate = obj.ID
		if candidate == "" {
			candidate = obj.Href
		}
	}

	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	return candidate, true
}
