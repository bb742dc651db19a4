package federation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"plume/pkg/activitypub"
	"plume/pkg/config"
	"plume/pkg/federr"
	"plume/pkg/httpsig"
	"plume/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// responsePreview bounds how much of a rejecting response is logged
const responsePreview = 256

// Dispatcher broadcasts activities to remote inboxes. It holds no
// connections between calls; each Broadcast builds and tears down its own
// transport.
type Dispatcher struct {
	cfg     config.FederationConfig
	metrics *DeliveryMetrics
	logger  *zap.Logger

	broadcasts   atomic.Int64
	destinations atomic.Int64
	skipped      atomic.Int64
	attempts     atomic.Int64
	delivered    atomic.Int64
	last         atomic.Int64 // unix nanos of the last settled broadcast
}

// Stats summarizes what a Dispatcher has done since it was created
type Stats struct {
	Broadcasts    int64
	Destinations  int64
	Skipped       int64
	Attempts      int64
	Delivered     int64
	LastBroadcast time.Time
}

// NewDispatcher creates a dispatcher. Unset timeouts and sizes fall back
// to the defaults.
func NewDispatcher(cfg config.FederationConfig, metrics *DeliveryMetrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	def := config.DefaultFederation()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = def.MaxResponseSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	return &Dispatcher{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// attempt is one destination's request, owned by a single task
type attempt struct {
	url    *url.URL
	header http.Header
}

// Broadcast delivers activity to every remote recipient and waits until
// every attempt has settled. It returns an error only when the activity
// cannot be serialized or signed; per-destination failures are logged and
// never returned, so a nil error does not mean anything was delivered.
func (d *Dispatcher) Broadcast(ctx context.Context, signer types.Signer, activity any, recipients []types.DeliveryTarget, proxy *url.URL) error {
	start := time.Now()
	d.broadcasts.Add(1)
	d.metrics.broadcastStarted()
	defer func() {
		d.last.Store(time.Now().UnixNano())
	}()

	doc, err := activitypub.Wrap(activity).Document()
	if err != nil {
		d.metrics.broadcastAborted(err)
		return fmt.Errorf("broadcast: %w", err)
	}
	signed, err := httpsig.Prepare(doc, signer, httpsig.WithUserAgent(d.cfg.UserAgent))
	if err != nil {
		d.metrics.broadcastAborted(err)
		return fmt.Errorf("broadcast: %w", err)
	}

	destinations := Destinations(recipients)
	d.destinations.Add(int64(len(destinations)))
	d.metrics.resolved(len(destinations))

	attempts := make([]attempt, 0, len(destinations))
	for _, dest := range destinations {
		a, reason, err := prepareAttempt(signed, dest)
		if err != nil {
			d.logger.Warn("Skipping destination",
				zap.String("inbox", dest),
				zap.String("reason", reason),
				zap.Error(err))
			d.skipped.Add(1)
			d.metrics.skipped(reason)
			continue
		}
		attempts = append(attempts, a)
	}

	if len(attempts) == 0 {
		d.logger.Debug("Nothing to deliver", zap.Int("recipients", len(recipients)))
		d.metrics.broadcastSettled(time.Since(start))
		return nil
	}

	transport := d.newTransport(proxy)
	defer transport.CloseIdleConnections()
	client := &http.Client{
		Transport: transport,
		// a redirected POST would be replayed as a GET; report it instead
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	body := signed.Body()
	var g errgroup.Group
	for _, a := range attempts {
		a := a
		g.Go(func() error {
			d.deliver(ctx, client, body, a)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("Broadcast settled",
		zap.Int("destinations", len(attempts)),
		zap.Duration("duration", time.Since(start)))
	d.metrics.broadcastSettled(time.Since(start))
	return nil
}

// prepareAttempt validates dest and signs the request headers for it.
// Failures are confined to this destination.
func prepareAttempt(signed *httpsig.SignedDocument, dest string) (attempt, string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return attempt{}, reasonInvalidURL, federr.Destination("federation.Broadcast", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return attempt{}, reasonInvalidURL, federr.Destination("federation.Broadcast", fmt.Errorf("%q is not an absolute URL with a host", dest))
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return attempt{}, reasonInvalidURL, federr.Destination("federation.Broadcast", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	h, err := signed.HeadersFor(u)
	if err != nil {
		return attempt{}, reasonSignature, federr.Destination("federation.Broadcast", err)
	}
	return attempt{url: u, header: h}, "", nil
}

// newTransport builds the transport shared by every attempt of one call,
// so the proxy applies to all of them
func (d *Dispatcher) newTransport(proxy *url.URL) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   d.cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   d.cfg.ConnectTimeout,
		ResponseHeaderTimeout: d.cfg.ResponseTimeout,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

func (d *Dispatcher) deliver(ctx context.Context, client *http.Client, body []byte, a attempt) {
	inbox := a.url.String()
	logger := d.logger.With(zap.String("inbox", inbox))

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout+d.cfg.ResponseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		logger.Warn("Failed to build delivery request", zap.Error(err))
		d.metrics.failed(reasonRequest)
		return
	}
	req.Header = a.header
	req.Host = a.header.Get("Host")

	started := time.Now()
	d.attempts.Add(1)
	d.metrics.attempted()

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("Delivery failed",
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		d.metrics.failed(reasonTransport)
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxResponseSize))
	elapsed := time.Since(started)
	d.metrics.responded(resp.StatusCode, elapsed)
	if err != nil {
		logger.Debug("Failed to read delivery response", zap.Error(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(payload) > responsePreview {
			payload = payload[:responsePreview]
		}
		logger.Warn("Destination rejected activity",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.ByteString("response", payload))
		d.metrics.failed(reasonStatus)
		return
	}

	d.delivered.Add(1)
	logger.Debug("Delivered activity",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
}

// Stats reports counters since the dispatcher was created
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	s := Stats{
		Broadcasts:   d.broadcasts.Load(),
		Destinations: d.destinations.Load(),
		Skipped:      d.skipped.Load(),
		Attempts:     d.attempts.Load(),
		Delivered:    d.delivered.Load(),
	}
	if last := d.last.Load(); last != 0 {
		s.LastBroadcast = time.Unix(0, last)
	}
	return s
}
