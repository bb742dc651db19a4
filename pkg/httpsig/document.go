package httpsig

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"plume/pkg/federr"
	"plume/pkg/types"
	"plume/pkg/vocab"
)

const identityContext = "https://w3id.org/identity/v1"

var ErrUnsigned = errors.New("document carries no signature")

// LDSignature is the linked-data signature embedded under "signature"
type LDSignature struct {
	Type           string `json:"type"`
	Creator        string `json:"creator"`
	Created        string `json:"created"`
	SignatureValue string `json:"signatureValue"`
}

// ldSignatureType maps the advertised algorithm onto a signature suite
func ldSignatureType(s types.Signer) string {
	alg := strings.ToLower(algorithmOf(s))
	switch {
	case alg == "hs2019", alg == "ed25519":
		return "Ed25519Signature2018"
	case strings.HasPrefix(alg, "rsa-"):
		return "RsaSignature2017"
	}
	// unknown names are treated like DefaultAlgorithm
	return "RsaSignature2017"
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// toBeSigned is hex(sha256(options)) followed by hex(sha256(document)),
// where document excludes any existing signature
func toBeSigned(doc *vocab.Properties, creator, created string) ([]byte, error) {
	options, err := json.Marshal(map[string]string{
		"@context": identityContext,
		"created":  created,
		"creator":  creator,
	})
	if err != nil {
		return nil, err
	}

	unsigned := doc.Clone()
	unsigned.Remove("signature")
	body, err := unsigned.Canonical()
	if err != nil {
		return nil, err
	}
	return []byte(hashHex(options) + hashHex(body)), nil
}

// SignDocument embeds a linked-data signature in doc, replacing any
// previous one
func SignDocument(doc *vocab.Properties, signer types.Signer, now time.Time) error {
	created := now.UTC().Format(time.RFC3339)
	data, err := toBeSigned(doc, signer.KeyID(), created)
	if err != nil {
		return federr.Serialization("httpsig.SignDocument", err)
	}

	sig, err := signer.Sign(data)
	if err != nil {
		return federr.Signature("httpsig.SignDocument", err)
	}

	return doc.Set("signature", LDSignature{
		Type:           ldSignatureType(signer),
		Creator:        signer.KeyID(),
		Created:        created,
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
	})
}

// VerifyDocument checks the embedded signature of doc against pub
func VerifyDocument(doc *vocab.Properties, pub crypto.PublicKey) (*LDSignature, error) {
	var ld LDSignature
	found, err := doc.Get("signature", &ld)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnsigned
	}

	sig, err := base64.StdEncoding.DecodeString(ld.SignatureValue)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signatureValue encoding", ErrMalformed)
	}
	data, err := toBeSigned(doc, ld.Creator, ld.Created)
	if err != nil {
		return nil, err
	}
	if err := Verify(pub, data, sig); err != nil {
		return nil, err
	}
	return &ld, nil
}
