package vocab

import (
	"encoding/json"
	"fmt"

	"plume/pkg/federr"
	"plume/pkg/types"
)

// Object is the base vocabulary layer every entity carries
type Object struct {
	Type string
	ID   types.ID

	// hasID keeps an explicitly empty "id" through a round trip
	hasID bool
}

func (o *Object) Decompose(bag *Properties) error {
	if err := required(bag, "type", &o.Type); err != nil {
		return err
	}
	if o.Type == "" {
		return federr.Serialization("vocab.Object.Decompose", fmt.Errorf("%w: %q is empty", ErrWrongShape, "type"))
	}
	id, err := optional[string](bag, "id")
	if err != nil {
		return err
	}
	if id != nil {
		o.ID = types.NewID(*id)
		o.hasID = true
	}
	return nil
}

func (o *Object) Compose(bag *Properties) error {
	if o.Type == "" {
		return federr.Serialization("vocab.Object.Compose", fmt.Errorf("%w: %q", ErrMissingKey, "type"))
	}
	if o.hasID || !o.ID.IsZero() {
		if err := bag.Insert("id", o.ID.String()); err != nil {
			return err
		}
	}
	return bag.Insert("type", o.Type)
}

// Entity is a base object with typed extensions layered over one property
// bag. Rest holds every key neither the base nor an extension claimed.
type Entity struct {
	Base       Object
	Extensions []Extension
	Rest       *Properties
}

// NewEntity builds an entity of the given type
func NewEntity(kind string, exts ...Extension) *Entity {
	return &Entity{
		Base:       Object{Type: kind},
		Extensions: exts,
		Rest:       NewProperties(),
	}
}

// Decode splits data into the base object, the given extensions and the
// leftover bag. Extensions are listed innermost first, as for Compose, and
// are filled in place.
func Decode(data []byte, exts ...Extension) (*Entity, error) {
	bag, err := ParseProperties(data)
	if err != nil {
		return nil, err
	}
	return DecodeProperties(bag, exts...)
}

// DecodeProperties is Decode over an already parsed bag; bag is not modified
func DecodeProperties(bag *Properties, exts ...Extension) (*Entity, error) {
	rest := bag.Clone()
	e := &Entity{Extensions: exts}
	for i := len(exts) - 1; i >= 0; i-- {
		if err := exts[i].Decompose(rest); err != nil {
			return nil, err
		}
	}
	if err := e.Base.Decompose(rest); err != nil {
		return nil, err
	}
	e.Rest = rest
	return e, nil
}

// Properties recomposes the entity: base keys first, then the leftover
// bag, then each extension in order with the outermost composed last.
func (e *Entity) Properties() (*Properties, error) {
	bag := NewProperties()
	if err := e.Base.Compose(bag); err != nil {
		return nil, err
	}
	if e.Rest != nil {
		for _, key := range e.Rest.keys {
			if bag.Has(key) {
				return nil, federr.Serialization("vocab.Entity.Compose", fmt.Errorf("%w: %q", ErrKeyConflict, key))
			}
			bag.SetRaw(key, e.Rest.values[key])
		}
	}
	for _, ext := range e.Extensions {
		if err := ext.Compose(bag); err != nil {
			return nil, err
		}
	}
	return bag, nil
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	bag, err := e.Properties()
	if err != nil {
		return nil, err
	}
	return json.Marshal(bag)
}

// Get reads an unclaimed property
func (e *Entity) Get(key string, dst any) (bool, error) {
	if e.Rest == nil {
		return false, nil
	}
	return e.Rest.Get(key, dst)
}

// Set writes an unclaimed property
func (e *Entity) Set(key string, v any) error {
	if e.Rest == nil {
		e.Rest = NewProperties()
	}
	return e.Rest.Set(key, v)
}

// IntoID implements types.IntoID
func (e *Entity) IntoID() types.ID {
	return e.Base.ID
}

// ExtensionOf returns the first extension of type T
func ExtensionOf[T Extension](e *Entity) (T, bool) {
	for _, ext := range e.Extensions {
		if t, ok := ext.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
