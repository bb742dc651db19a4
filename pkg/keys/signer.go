package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"plume/pkg/types"
)

// RSASigner signs with RSASSA-PKCS1-v1_5 over SHA-256 ("rsa-sha256").
// The scheme is deterministic: equal inputs give equal signatures.
type RSASigner struct {
	keyID string
	key   *rsa.PrivateKey
}

func NewRSASigner(keyID string, key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{keyID: keyID, key: key}
}

func (s *RSASigner) KeyID() string { return s.keyID }

func (s *RSASigner) Algorithm() string { return "rsa-sha256" }

func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsa-sha256 signing failed: %w", err)
	}
	return sig, nil
}

// Public returns the verification key
func (s *RSASigner) Public() crypto.PublicKey { return &s.key.PublicKey }

// Ed25519Signer signs the raw data with Ed25519, advertised as "hs2019"
type Ed25519Signer struct {
	keyID string
	key   ed25519.PrivateKey
}

func NewEd25519Signer(keyID string, key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{keyID: keyID, key: key}
}

func (s *Ed25519Signer) KeyID() string { return s.keyID }

func (s *Ed25519Signer) Algorithm() string { return "hs2019" }

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

func (s *Ed25519Signer) Public() crypto.PublicKey { return s.key.Public() }

// NewSigner wraps a parsed private key
func NewSigner(keyID string, key crypto.Signer) (types.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return NewRSASigner(keyID, k), nil
	case ed25519.PrivateKey:
		return NewEd25519Signer(keyID, k), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// LoadSigner reads the private key at path and binds it to keyID
func LoadSigner(path, keyID string) (types.Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key id is required")
	}
	key, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return NewSigner(keyID, key)
}
