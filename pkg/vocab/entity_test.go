package vocab

import (
	"encoding/json"
	"testing"

	"plume/pkg/federr"
	"plume/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, in string, exts ...Extension) *Entity {
	t.Helper()
	e, err := Decode([]byte(in), exts...)
	require.NoError(t, err)
	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	return e
}

func TestRoundTripIsLossless(t *testing.T) {
	tests := []struct {
		name string
		in   string
		exts func() []Extension
	}{
		{
			name: "person with public key and unknown keys",
			in: `{
				"id": "https://blog.example/@/alice/",
				"type": "Person",
				"inbox": "https://blog.example/@/alice/inbox",
				"outbox": "https://blog.example/@/alice/outbox",
				"preferredUsername": "alice",
				"endpoints": {"sharedInbox": "https://blog.example/inbox", "oauthTokenEndpoint": "https://blog.example/oauth"},
				"publicKey": {
					"id": "https://blog.example/@/alice/#main-key",
					"owner": "https://blog.example/@/alice/",
					"publicKeyPem": "-----BEGIN PUBLIC KEY-----",
					"type": "Key"
				},
				"manuallyApprovesFollowers": false,
				"icon": {"type": "Image", "url": "https://blog.example/a.png"}
			}`,
			exts: func() []Extension { return []Extension{&Actor{}, &ApSignature{}} },
		},
		{
			name: "person with optional fields absent",
			in:   `{"type":"Person","inbox":"https://a.example/inbox","publicKey":{"id":"k","owner":"o","publicKeyPem":"p"}}`,
			exts: func() []Extension { return []Extension{&Actor{}, &ApSignature{}} },
		},
		{
			name: "group with source",
			in: `{"type":"Group","id":"https://blog.example/~/tech/","inbox":"https://blog.example/~/tech/inbox",
				"publicKey":{"id":"k","owner":"o","publicKeyPem":"p"},
				"source":{"content":"**tech**","mediaType":"text/markdown"},"summary":"<b>tech</b>"}`,
			exts: func() []Extension { return []Extension{&Actor{}, &ApSignature{}, &ActorSource{}} },
		},
		{
			name: "licensed article",
			in:   `{"type":"Article","license":"CC-0","content":"<p>hi</p>","to":["https://www.w3.org/ns/activitystreams#Public"]}`,
			exts: func() []Extension { return []Extension{&Licensed{}} },
		},
		{
			name: "hashtag with both fields",
			in:   `{"type":"Hashtag","href":"https://blog.example/tag/go","name":"#go"}`,
			exts: func() []Extension { return []Extension{&Hashtag{}} },
		},
		{
			name: "hashtag with no optional fields",
			in:   `{"type":"Hashtag"}`,
			exts: func() []Extension { return []Extension{&Hashtag{}} },
		},
		{
			name: "empty id is kept",
			in:   `{"type":"Note","id":""}`,
			exts: func() []Extension { return nil },
		},
		{
			name: "explicit null optional passes through",
			in:   `{"type":"Hashtag","href":null,"name":"#go"}`,
			exts: func() []Extension { return []Extension{&Hashtag{}} },
		},
		{
			name: "source as top-level extension",
			in:   `{"type":"Note","content":"hi","mediaType":"text/plain","extra":1.5e3}`,
			exts: func() []Extension { return []Extension{&Source{}} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, tt.in, tt.exts()...)
		})
	}
}

func TestDecodeFillsExtensions(t *testing.T) {
	in := `{"type":"Person","id":"https://a.example/u","inbox":"https://a.example/u/inbox",
		"endpoints":{"sharedInbox":"https://a.example/inbox"},
		"publicKey":{"id":"https://a.example/u#key","owner":"https://a.example/u","publicKeyPem":"PEM"},
		"name":"Alice"}`

	e, err := DecodePerson([]byte(in))
	require.NoError(t, err)

	assert.Equal(t, "Person", e.Base.Type)
	assert.Equal(t, types.ID("https://a.example/u"), e.IntoID())

	actor, ok := ExtensionOf[*Actor](e)
	require.True(t, ok)
	assert.Equal(t, "https://a.example/u/inbox", actor.Inbox)
	shared, ok := actor.SharedInbox()
	assert.True(t, ok)
	assert.Equal(t, "https://a.example/inbox", shared)
	assert.Nil(t, actor.Outbox)

	sig, ok := ExtensionOf[*ApSignature](e)
	require.True(t, ok)
	assert.Equal(t, "https://a.example/u#key", sig.PublicKey.ID)
	assert.Equal(t, "PEM", sig.PublicKey.PublicKeyPem)

	assert.Equal(t, []string{"name"}, e.Rest.Keys(), "claimed keys are removed from the leftover bag")

	var name string
	found, err := e.Get("name", &name)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Alice", name)

	_, ok = ExtensionOf[*Licensed](e)
	assert.False(t, ok)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		exts    []Extension
		wantErr error
	}{
		{"missing type", `{"inbox":"x"}`, nil, ErrMissingKey},
		{"empty type", `{"type":"","x":1}`, nil, ErrWrongShape},
		{"missing inbox", `{"type":"Person","publicKey":{"id":"k","owner":"o","publicKeyPem":"p"}}`, []Extension{&Actor{}, &ApSignature{}}, ErrMissingKey},
		{"missing public key", `{"type":"Person","inbox":"x"}`, []Extension{&Actor{}, &ApSignature{}}, ErrMissingKey},
		{"public key missing owner", `{"type":"Person","inbox":"x","publicKey":{"id":"k","publicKeyPem":"p"}}`, []Extension{&Actor{}, &ApSignature{}}, ErrWrongShape},
		{"inbox wrong shape", `{"type":"Person","inbox":["x"],"publicKey":{"id":"k","owner":"o","publicKeyPem":"p"}}`, []Extension{&Actor{}, &ApSignature{}}, ErrWrongShape},
		{"license null", `{"type":"Article","license":null}`, []Extension{&Licensed{}}, ErrWrongShape},
		{"hashtag name wrong shape", `{"type":"Hashtag","name":3}`, []Extension{&Hashtag{}}, ErrWrongShape},
		{"not an object", `["Person"]`, nil, ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in), tt.exts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, federr.IsSerialization(err))
		})
	}
}

func TestComposeConflicts(t *testing.T) {
	e := NewLicensedArticle("https://blog.example/~/b/post", "CC-0")
	require.NoError(t, e.Set("license", "already here"))

	_, err := json.Marshal(e)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyConflict)

	dup := NewEntity("Note", &Source{Content: "a", MediaType: "text/plain"}, &Source{Content: "b", MediaType: "text/plain"})
	_, err = dup.Properties()
	assert.ErrorIs(t, err, ErrKeyConflict)

	reserved := NewEntity("Note")
	require.NoError(t, reserved.Set("type", "Article"))
	_, err = reserved.Properties()
	assert.ErrorIs(t, err, ErrKeyConflict)
}

func TestComposeRequiresType(t *testing.T) {
	_, err := json.Marshal(&Entity{})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSerializeCustomPerson(t *testing.T) {
	person := NewPerson("", "https://example.com/inbox", PublicKey{
		ID:           "https://example.com/pubkey",
		Owner:        "https://example.com/owner",
		PublicKeyPem: "pubKeyPem",
	})

	out, err := json.Marshal(person)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"inbox": "https://example.com/inbox",
		"type": "Person",
		"publicKey": {
			"id": "https://example.com/pubkey",
			"owner": "https://example.com/owner",
			"publicKeyPem": "pubKeyPem"
		}
	}`, string(out))
}

func TestSerializeLicensedArticle(t *testing.T) {
	out, err := json.Marshal(NewLicensedArticle("", "CC-0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Article","license":"CC-0"}`, string(out))
}

func TestSerializeGroup(t *testing.T) {
	group := NewGroup("https://blog.example/~/tech/", "https://blog.example/~/tech/inbox",
		PublicKey{ID: "k", Owner: "o", PublicKeyPem: "p"},
		Source{Content: "tech", MediaType: "text/markdown"})

	out, err := json.Marshal(group)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "https://blog.example/~/tech/",
		"type": "Group",
		"inbox": "https://blog.example/~/tech/inbox",
		"publicKey": {"id": "k", "owner": "o", "publicKeyPem": "p"},
		"source": {"content": "tech", "mediaType": "text/markdown"}
	}`, string(out))

	back, err := DecodeGroup(out)
	require.NoError(t, err)
	src, ok := ExtensionOf[*ActorSource](back)
	require.True(t, ok)
	assert.Equal(t, "text/markdown", src.Source.MediaType)
}

func TestSharedInboxSetter(t *testing.T) {
	a := &Actor{Inbox: "https://a.example/u/inbox"}
	_, ok := a.SharedInbox()
	assert.False(t, ok)

	require.NoError(t, a.SetSharedInbox("https://a.example/inbox"))
	shared, ok := a.SharedInbox()
	assert.True(t, ok)
	assert.Equal(t, "https://a.example/inbox", shared)
}
