package vocab

// PublicKey is the security-vocabulary key an actor publishes
type PublicKey struct {
	ID           string
	Owner        string
	PublicKeyPem string

	rest *Properties
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	return unnest(k.rest, []string{"id", "owner", "publicKeyPem"}, map[string]string{
		"id":           k.ID,
		"owner":        k.Owner,
		"publicKeyPem": k.PublicKeyPem,
	})
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	rest, err := nested(data, map[string]*string{
		"id":           &k.ID,
		"owner":        &k.Owner,
		"publicKeyPem": &k.PublicKeyPem,
	})
	if err != nil {
		return err
	}
	k.rest = rest
	return nil
}

// ApSignature attaches a publicKey to an actor
type ApSignature struct {
	PublicKey PublicKey
}

func (s *ApSignature) Decompose(bag *Properties) error {
	return required(bag, "publicKey", &s.PublicKey)
}

func (s *ApSignature) Compose(bag *Properties) error {
	return bag.Insert("publicKey", s.PublicKey)
}
