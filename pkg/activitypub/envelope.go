package activitypub

import (
	"encoding/json"
	"net/http"

	"plume/pkg/federr"
	"plume/pkg/vocab"

	"go.uber.org/zap"
)

// Envelope wraps an entity for transmission. The @context is computed at
// render time and is never part of the entity itself.
type Envelope struct {
	entity any
	logger *zap.Logger
}

// Wrap builds an envelope around any JSON-serializable entity
func Wrap(entity any) *Envelope {
	return &Envelope{entity: entity, logger: zap.NewNop()}
}

// WithLogger sets the logger used to report render failures in ServeHTTP
func (e *Envelope) WithLogger(logger *zap.Logger) *Envelope {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Document serializes the entity and overwrites @context with the
// canonical structure. Any context-like key already present is replaced,
// never merged.
func (e *Envelope) Document() (*vocab.Properties, error) {
	raw, err := json.Marshal(e.entity)
	if err != nil {
		return nil, federr.Serialization("activitypub.Envelope.Render", err)
	}
	doc, err := vocab.ParseProperties(raw)
	if err != nil {
		return nil, federr.Serialization("activitypub.Envelope.Render", err)
	}
	if err := doc.Set("@context", Context()); err != nil {
		return nil, err
	}
	return doc, nil
}

// Render returns the document bytes. No bytes are returned on failure.
func (e *Envelope) Render() ([]byte, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, err
	}
	return doc.Canonical()
}

// ServeHTTP responds with the rendered document, or a bare 500 if the
// entity cannot be rendered.
func (e *Envelope) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := e.Render()
	if err != nil {
		e.logger.Error("Failed to render activity document",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ActivityJSONContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
