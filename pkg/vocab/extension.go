package vocab

import (
	"encoding/json"
	"fmt"

	"plume/pkg/federr"
)

// Extension is a typed view over part of a property bag.
//
// Decompose claims the extension's keys, removing them from bag so that the
// bag holds only what is left over. Compose writes them back and fails with
// ErrKeyConflict if any of them is already present. Keys an extension does
// not claim are never read or dropped.
type Extension interface {
	Decompose(bag *Properties) error
	Compose(bag *Properties) error
}

func required(bag *Properties, key string, dst any) error {
	raw, ok := bag.Raw(key)
	if !ok {
		return federr.Serialization("vocab.Decompose", fmt.Errorf("%w: %q", ErrMissingKey, key))
	}
	if isNull(raw) {
		return federr.Serialization("vocab.Decompose", fmt.Errorf("%w: %q is null", ErrWrongShape, key))
	}
	_, err := bag.Take(key, dst)
	return err
}

// optional claims key only when it holds a non-null value, so an explicit
// null keeps flowing through the leftover bag.
func optional[T any](bag *Properties, key string) (*T, error) {
	raw, ok := bag.Raw(key)
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v T
	if _, err := bag.Take(key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func insertOptional[T any](bag *Properties, key string, v *T) error {
	if v == nil {
		return nil
	}
	return bag.Insert(key, *v)
}

// nested decodes a JSON object into the listed string fields, keeping any
// other members in rest.
func nested(raw []byte, fields map[string]*string) (*Properties, error) {
	bag, err := ParseProperties(raw)
	if err != nil {
		return nil, err
	}
	for key, dst := range fields {
		if err := required(bag, key, dst); err != nil {
			return nil, err
		}
	}
	return bag, nil
}

func unnest(rest *Properties, order []string, fields map[string]string) ([]byte, error) {
	bag := NewProperties()
	for _, key := range order {
		if err := bag.Insert(key, fields[key]); err != nil {
			return nil, err
		}
	}
	if rest != nil {
		for _, key := range rest.keys {
			if bag.Has(key) {
				return nil, federr.Serialization("vocab.Compose", fmt.Errorf("%w: %q", ErrKeyConflict, key))
			}
			bag.SetRaw(key, rest.values[key])
		}
	}
	return json.Marshal(bag)
}
