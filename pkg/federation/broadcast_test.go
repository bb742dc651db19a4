package federation

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"plume/pkg/activitypub"
	"plume/pkg/config"
	"plume/pkg/federr"
	"plume/pkg/httpsig"
	"plume/pkg/keys"
	"plume/pkg/types"
	"plume/pkg/vocab"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testSigner(t *testing.T) *keys.Ed25519Signer {
	t.Helper()
	priv, err := keys.GenerateEd25519Key()
	require.NoError(t, err)
	return keys.NewEd25519Signer("https://blog.example/@/alice/#main-key", priv)
}

// pathSigner fails to sign any request aimed at a path containing failOn
type pathSigner struct {
	types.Signer
	failOn string
}

func (s *pathSigner) Sign(data []byte) ([]byte, error) {
	if strings.Contains(string(data), s.failOn) {
		return nil, errors.New("key revoked")
	}
	return s.Signer.Sign(data)
}

func testActivity() *vocab.Entity {
	e := vocab.NewEntity("Create")
	e.Base.ID = types.NewActivityID("https://blog.example/activities")
	_ = e.Set("actor", "https://blog.example/@/alice/")
	_ = e.Set("to", []string{activitypub.PublicVisibility})
	_ = e.Set("object", map[string]string{"type": "Note", "content": "<p>hello</p>"})
	return e
}

func testConfig() config.FederationConfig {
	cfg := config.DefaultFederation()
	cfg.UserAgent = "plume/test"
	cfg.ConnectTimeout = time.Second
	cfg.ResponseTimeout = 2 * time.Second
	return cfg
}

type received struct {
	path    string
	host    string
	body    []byte
	header  http.Header
	verify  error
	digestE error
}

// inbox records every request and checks its signature against pub
type inbox struct {
	mu       sync.Mutex
	requests []received
	pub      ed25519.PublicKey
	status   func(path string) int
}

func (ib *inbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := received{path: r.URL.Path, host: r.Host, body: body, header: r.Header.Clone()}
	_, rec.verify = httpsig.VerifyRequest(r, ib.pub)
	rec.digestE = httpsig.VerifyDigest(r.Header.Get("Digest"), body)

	ib.mu.Lock()
	ib.requests = append(ib.requests, rec)
	ib.mu.Unlock()

	status := http.StatusAccepted
	if ib.status != nil {
		status = ib.status(r.URL.Path)
	}
	w.WriteHeader(status)
	w.Write([]byte("rejected: " + r.URL.Path))
}

func (ib *inbox) paths() []string {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	out := make([]string, 0, len(ib.requests))
	for _, r := range ib.requests {
		out = append(out, r.path)
	}
	return out
}

func newInbox(t *testing.T, signer *keys.Ed25519Signer) (*inbox, *httptest.Server) {
	ib := &inbox{pub: signer.Public().(ed25519.PublicKey)}
	srv := httptest.NewServer(ib)
	t.Cleanup(srv.Close)
	return ib, srv
}

func TestBroadcastDeliversSignedActivity(t *testing.T) {
	signer := testSigner(t)
	ib, srv := newInbox(t, signer)
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(testConfig(), metrics, zaptest.NewLogger(t))

	recipients := []types.DeliveryTarget{
		StaticTarget{Inbox: srv.URL + "/users/bob/inbox", SharedInbox: srv.URL + "/inbox"},
		StaticTarget{Inbox: srv.URL + "/users/carol/inbox", SharedInbox: srv.URL + "/inbox"},
		StaticTarget{Inbox: srv.URL + "/local", Local: true},
	}

	err := d.Broadcast(context.Background(), signer, testActivity(), recipients, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"/inbox"}, ib.paths(), "one request per shared inbox, none to local recipients")
	req := ib.requests[0]
	assert.NoError(t, req.verify)
	assert.NoError(t, req.digestE)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), req.host)
	assert.Equal(t, activitypub.APContentType, req.header.Get("Content-Type"))
	assert.Equal(t, "plume/test", req.header.Get("User-Agent"))

	doc, err := vocab.ParseProperties(req.body)
	require.NoError(t, err)
	var ctx []any
	found, err := doc.Get("@context", &ctx)
	require.NoError(t, err)
	assert.True(t, found)
	_, err = httpsig.VerifyDocument(doc, signer.Public())
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Broadcasts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Destinations))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Responses.WithLabelValues("2xx")))

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Broadcasts)
	assert.Equal(t, int64(1), stats.Delivered)
	assert.False(t, stats.LastBroadcast.IsZero())
}

func TestBroadcastSkipsMalformedDestination(t *testing.T) {
	signer := testSigner(t)
	ib, srv := newInbox(t, signer)
	core, logs := observer.New(zap.WarnLevel)
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(testConfig(), metrics, zap.New(core))

	recipients := []types.DeliveryTarget{
		StaticTarget{Inbox: "not a url"},
		StaticTarget{Inbox: "mailto:bob@remote.example"},
		StaticTarget{Inbox: srv.URL + "/inbox"},
	}

	require.NoError(t, d.Broadcast(context.Background(), signer, testActivity(), recipients, nil))
	assert.Equal(t, []string{"/inbox"}, ib.paths())

	skipped := logs.FilterMessage("Skipping destination").All()
	require.Len(t, skipped, 2)
	assert.Equal(t, "not a url", skipped[0].ContextMap()["inbox"])
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Skipped.WithLabelValues(reasonInvalidURL)))
	assert.Equal(t, int64(2), d.Stats().Skipped)
	assert.Equal(t, int64(3), d.Stats().Destinations)
}

func TestBroadcastIsolatesSignatureFailures(t *testing.T) {
	signer := testSigner(t)
	ib, srv := newInbox(t, signer)
	core, logs := observer.New(zap.WarnLevel)
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(testConfig(), metrics, zap.New(core))

	recipients := []types.DeliveryTarget{
		StaticTarget{Inbox: srv.URL + "/revoked/inbox"},
		StaticTarget{Inbox: srv.URL + "/inbox"},
	}

	err := d.Broadcast(context.Background(), &pathSigner{Signer: signer, failOn: "/revoked"}, testActivity(), recipients, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/inbox"}, ib.paths())
	assert.Equal(t, 1, logs.FilterMessage("Skipping destination").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Skipped.WithLabelValues(reasonSignature)))
}

func TestBroadcastDiscardsFailures(t *testing.T) {
	signer := testSigner(t)
	ib, srv := newInbox(t, signer)
	ib.status = func(path string) int {
		if path == "/broken" {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}

	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()

	core, logs := observer.New(zap.WarnLevel)
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(testConfig(), metrics, zap.New(core))

	recipients := []types.DeliveryTarget{
		StaticTarget{Inbox: srv.URL + "/broken"},
		StaticTarget{Inbox: gone.URL + "/inbox"},
		StaticTarget{Inbox: srv.URL + "/inbox"},
	}

	require.NoError(t, d.Broadcast(context.Background(), signer, testActivity(), recipients, nil))
	assert.ElementsMatch(t, []string{"/broken", "/inbox"}, ib.paths())

	rejected := logs.FilterMessage("Destination rejected activity").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(http.StatusInternalServerError), rejected[0].ContextMap()["status"])
	assert.Equal(t, "rejected: /broken", rejected[0].ContextMap()["response"])
	assert.Equal(t, 1, logs.FilterMessage("Delivery failed").Len())

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AttemptFailures.WithLabelValues(reasonStatus)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AttemptFailures.WithLabelValues(reasonTransport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Responses.WithLabelValues("5xx")))
	assert.Equal(t, int64(1), d.Stats().Delivered)
}

func TestBroadcastFatalErrors(t *testing.T) {
	signer := testSigner(t)
	ib, srv := newInbox(t, signer)
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(testConfig(), metrics, zaptest.NewLogger(t))
	recipients := []types.DeliveryTarget{StaticTarget{Inbox: srv.URL + "/inbox"}}

	err := d.Broadcast(context.Background(), signer, map[string]any{"type": "Create", "object": make(chan int)}, recipients, nil)
	assert.True(t, federr.IsSerialization(err))

	err = d.Broadcast(context.Background(), &pathSigner{Signer: signer, failOn: ""}, testActivity(), recipients, nil)
	assert.True(t, federr.IsSignature(err))

	err = d.Broadcast(context.Background(), nil, testActivity(), recipients, nil)
	assert.True(t, federr.IsSignature(err))

	assert.Empty(t, ib.paths(), "nothing is sent when the activity cannot be prepared")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BroadcastFailures.WithLabelValues("serialization")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BroadcastFailures.WithLabelValues("signature")))
}

func TestBroadcastAppliesProxyToEveryAttempt(t *testing.T) {
	signer := testSigner(t)
	ib, proxy := newInbox(t, signer)
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	d := NewDispatcher(testConfig(), nil, zaptest.NewLogger(t))
	recipients := []types.DeliveryTarget{
		StaticTarget{Inbox: "http://a.example/inbox"},
		StaticTarget{Inbox: "http://b.example/users/1/inbox", SharedInbox: "http://b.example/inbox"},
	}

	require.NoError(t, d.Broadcast(context.Background(), signer, testActivity(), recipients, proxyURL))

	ib.mu.Lock()
	defer ib.mu.Unlock()
	require.Len(t, ib.requests, 2)
	hosts := []string{ib.requests[0].host, ib.requests[1].host}
	assert.ElementsMatch(t, []string{"a.example", "b.example"}, hosts)
	for _, r := range ib.requests {
		assert.NoError(t, r.verify, "signature is bound to the destination, not the proxy")
	}
}

func TestBroadcastBoundsStalledPeers(t *testing.T) {
	signer := testSigner(t)
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(stalled.Close)

	cfg := testConfig()
	cfg.ResponseTimeout = 200 * time.Millisecond
	metrics := NewDeliveryMetrics(prometheus.NewRegistry())
	d := NewDispatcher(cfg, metrics, zaptest.NewLogger(t))

	start := time.Now()
	err := d.Broadcast(context.Background(), signer, testActivity(), []types.DeliveryTarget{StaticTarget{Inbox: stalled.URL + "/inbox"}}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AttemptFailures.WithLabelValues(reasonTransport)))
}

func TestBroadcastDeliversConcurrently(t *testing.T) {
	const peers = 3
	hold := 1500 * time.Millisecond

	var arrived sync.WaitGroup
	arrived.Add(peers)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	var hits, released atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		arrived.Done()
		select {
		case <-release:
			released.Add(1)
		case <-time.After(hold):
		}
		w.WriteHeader(http.StatusAccepted)
	})

	var recipients []types.DeliveryTarget
	for i := 0; i < peers; i++ {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		recipients = append(recipients, StaticTarget{Inbox: srv.URL + "/inbox"})
	}

	cfg := testConfig()
	cfg.ResponseTimeout = 5 * time.Second
	d := NewDispatcher(cfg, nil, zaptest.NewLogger(t))

	start := time.Now()
	err := d.Broadcast(context.Background(), testSigner(t), testActivity(), recipients, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), hold, "every inbox is held until all of them are in flight")
	assert.Equal(t, int32(peers), hits.Load())
	assert.Equal(t, int32(peers), released.Load())
	assert.Equal(t, int64(peers), d.Stats().Delivered)
}

func TestBroadcastWithoutDestinations(t *testing.T) {
	d := NewDispatcher(config.FederationConfig{}, nil, nil)
	err := d.Broadcast(context.Background(), testSigner(t), testActivity(), []types.DeliveryTarget{
		StaticTarget{Inbox: "https://blog.example/inbox", Local: true},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), d.Stats().Attempts)
}
