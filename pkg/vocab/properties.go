package vocab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"plume/pkg/federr"
)

var (
	ErrKeyConflict = errors.New("key already present")
	ErrMissingKey  = errors.New("required key missing")
	ErrWrongShape  = errors.New("value has the wrong shape")
	ErrNotObject   = errors.New("document is not a JSON object")
)

// Properties is an ordered JSON object. Values are kept as raw JSON so keys
// nobody claims survive a decode/encode cycle untouched.
type Properties struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewProperties returns an empty bag
func NewProperties() *Properties {
	return &Properties{values: make(map[string]json.RawMessage)}
}

// ParseProperties decodes a JSON object, keeping its key order
func ParseProperties(data []byte) (*Properties, error) {
	p := NewProperties()
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Properties) init() {
	if p.values == nil {
		p.values = make(map[string]json.RawMessage)
	}
}

// UnmarshalJSON replaces the bag with the members of a JSON object.
// A repeated key keeps its first position and its last value.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return federr.Serialization("vocab.Properties.Unmarshal", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return federr.Serialization("vocab.Properties.Unmarshal", ErrNotObject)
	}

	p.keys = p.keys[:0]
	p.values = make(map[string]json.RawMessage)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return federr.Serialization("vocab.Properties.Unmarshal", err)
		}
		key, ok := tok.(string)
		if !ok {
			return federr.Serialization("vocab.Properties.Unmarshal", fmt.Errorf("unexpected token %v", tok))
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return federr.Serialization("vocab.Properties.Unmarshal", fmt.Errorf("value of %q: %w", key, err))
		}
		p.SetRaw(key, raw)
	}

	if _, err := dec.Token(); err != nil {
		return federr.Serialization("vocab.Properties.Unmarshal", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return federr.Serialization("vocab.Properties.Unmarshal", errors.New("trailing data after object"))
	}
	return nil
}

// MarshalJSON writes the members in insertion order
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(p.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Canonical is the byte form used for hashing and transmission
func (p *Properties) Canonical() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, federr.Serialization("vocab.Properties.Canonical", err)
	}
	return b, nil
}

func (p *Properties) Len() int {
	return len(p.keys)
}

// Keys returns a copy of the keys in order
func (p *Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Raw returns the undecoded value of key
func (p *Properties) Raw(key string) (json.RawMessage, bool) {
	v, ok := p.values[key]
	return v, ok
}

// SetRaw stores raw under key, keeping the key's position if it exists
func (p *Properties) SetRaw(key string, raw json.RawMessage) {
	p.init()
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append(json.RawMessage(nil), raw...)
}

// Set encodes v and stores it under key, overwriting any previous value
func (p *Properties) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return federr.Serialization("vocab.Properties.Set", fmt.Errorf("%q: %w", key, err))
	}
	p.SetRaw(key, raw)
	return nil
}

// Insert is Set that refuses to overwrite
func (p *Properties) Insert(key string, v any) error {
	if p.Has(key) {
		return federr.Serialization("vocab.Properties.Insert", fmt.Errorf("%w: %q", ErrKeyConflict, key))
	}
	return p.Set(key, v)
}

// Remove deletes key and returns its raw value
func (p *Properties) Remove(key string) (json.RawMessage, bool) {
	raw, ok := p.values[key]
	if !ok {
		return nil, false
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return raw, true
}

// Get decodes the value of key into dst without removing it
func (p *Properties) Get(key string, dst any) (bool, error) {
	raw, ok := p.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, federr.Serialization("vocab.Properties.Get", fmt.Errorf("%w: %q: %v", ErrWrongShape, key, err))
	}
	return true, nil
}

// Take decodes the value of key into dst and removes it from the bag.
// The key stays in place when decoding fails.
func (p *Properties) Take(key string, dst any) (bool, error) {
	found, err := p.Get(key, dst)
	if !found || err != nil {
		return found, err
	}
	p.Remove(key)
	return true, nil
}

// Clone returns a deep copy
func (p *Properties) Clone() *Properties {
	c := &Properties{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]json.RawMessage, len(p.values)),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
