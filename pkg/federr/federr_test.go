package federr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"serialization", Serialization("vocab.Decode", cause), KindSerialization},
		{"signature", Signature("httpsig.Prepare", cause), KindSignature},
		{"destination", Destination("federation.deliver", cause), KindDestination},
		{"wrapped", fmt.Errorf("outer: %w", Signature("op", cause)), KindSignature},
		{"plain", cause, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.kind == KindSerialization, IsSerialization(tt.err))
			assert.Equal(t, tt.kind == KindSignature, IsSignature(tt.err))
			assert.Equal(t, tt.kind == KindDestination, IsDestination(tt.err))
			if tt.kind != KindUnknown {
				assert.ErrorIs(t, tt.err, cause)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Destination("federation.deliver", errors.New("no host"))
	assert.Equal(t, "federation.deliver: destination error: no host", err.Error())
	assert.Equal(t, "signature error", ErrSignature.Error())
}

func TestSentinelsDoNotMatchEachOther(t *testing.T) {
	assert.False(t, errors.Is(ErrSignature, ErrSerialization))
	assert.True(t, errors.Is(ErrDestination, ErrDestination))
}
