package vocab

// Source is the markup an object was rendered from
type Source struct {
	Content   string
	MediaType string

	rest *Properties
}

func (s Source) MarshalJSON() ([]byte, error) {
	return unnest(s.rest, []string{"content", "mediaType"}, map[string]string{
		"content":   s.Content,
		"mediaType": s.MediaType,
	})
}

func (s *Source) UnmarshalJSON(data []byte) error {
	rest, err := nested(data, map[string]*string{
		"content":   &s.Content,
		"mediaType": &s.MediaType,
	})
	if err != nil {
		return err
	}
	s.rest = rest
	return nil
}

// Decompose claims content and mediaType directly on the bag
func (s *Source) Decompose(bag *Properties) error {
	if err := required(bag, "content", &s.Content); err != nil {
		return err
	}
	return required(bag, "mediaType", &s.MediaType)
}

func (s *Source) Compose(bag *Properties) error {
	if err := bag.Insert("content", s.Content); err != nil {
		return err
	}
	return bag.Insert("mediaType", s.MediaType)
}

// ActorSource carries an actor's summary source
type ActorSource struct {
	Source Source
}

func (a *ActorSource) Decompose(bag *Properties) error {
	return required(bag, "source", &a.Source)
}

func (a *ActorSource) Compose(bag *Properties) error {
	return bag.Insert("source", a.Source)
}
