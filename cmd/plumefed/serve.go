package main

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plume/pkg/activitypub"
	"plume/pkg/config"
	"plume/pkg/federation"
	"plume/pkg/httpsig"
	"plume/pkg/keys"
	"plume/pkg/types"
	"plume/pkg/vocab"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// maxInboxBody bounds accepted deliveries
const maxInboxBody = 1 << 20

func serveCmd() *cobra.Command {
	var (
		address     string
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the instance actor and inbox",
		Long: `Serve the instance actor at /actor (negotiated on Accept), accept signed
deliveries at /inbox, and expose /health and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			key, err := keys.LoadPrivateKey(cfg.Instance.KeyPath)
			if err != nil {
				return fmt.Errorf("failed to load actor key (run 'plumefed keys generate'): %w", err)
			}
			actor, err := instanceActor(cfg, key.Public())
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			metrics := federation.NewDeliveryMetrics(registry)
			dispatcher := federation.NewDispatcher(cfg.Federation, metrics, logger)
			health := federation.NewHealthEndpoint(dispatcher, registry, logger)

			mux := http.NewServeMux()
			mux.Handle("/actor", &activitypub.Negotiator{
				Protocol: activitypub.Wrap(actor).WithLogger(logger),
				Forward:  http.HandlerFunc(humanActorPage(cfg)),
				Observe:  metrics.ObserveNegotiation,
			})
			mux.Handle("/inbox", &inboxHandler{
				keyID:  cfg.Instance.KeyID,
				public: key.Public(),
				logger: logger.Named("inbox"),
			})

			if metricsPort > 0 {
				ms := federation.StartMetricsServer(metricsPort, health, logger)
				defer ms.Close()
			} else {
				health.RegisterHandlers(mux)
			}

			server := &http.Server{
				Addr:              cfg.Server.Address,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting server",
					zap.String("address", cfg.Server.Address),
					zap.String("actor", cfg.ActorURL()))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address (overrides server.address)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve /health and /metrics on a separate port")

	return cmd
}

// instanceActor builds the Person served at /actor
func instanceActor(cfg *config.Config, pub crypto.PublicKey) (*vocab.Entity, error) {
	pem, err := keys.EncodePublicKeyPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	id := types.NewID(cfg.ActorURL())
	actor := vocab.NewPerson(id, cfg.InboxURL(), vocab.PublicKey{
		ID:           cfg.Instance.KeyID,
		Owner:        id.String(),
		PublicKeyPem: string(pem),
	})
	if a, ok := vocab.ExtensionOf[*vocab.Actor](actor); ok {
		name := cfg.Instance.Domain
		a.PreferredUsername = &name
		if err := a.SetSharedInbox(cfg.InboxURL()); err != nil {
			return nil, err
		}
	}
	if err := actor.Set("name", cfg.Instance.Domain); err != nil {
		return nil, err
	}
	return actor, nil
}

// humanActorPage answers browsers and unknown clients. The negotiation hint
// is exposed in X-Plume-Forward for the front-end proxy.
func humanActorPage(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, _ := activitypub.ForwardHint(r.Context())
		if html {
			w.Header().Set("X-Plume-Forward", "html")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<!doctype html><title>%s</title><p>Federation actor of <a href=%q>%s</a></p>\n",
				cfg.Instance.Domain, cfg.Instance.BaseURL, cfg.Instance.Domain)
			return
		}
		w.Header().Set("X-Plume-Forward", "other")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Federation actor of %s\n", cfg.Instance.Domain)
	}
}

// inboxHandler accepts deliveries signed by the configured key. What the
// activity means is left to the application.
type inboxHandler struct {
	keyID  string
	public crypto.PublicKey
	logger *zap.Logger
}

func (h *inboxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxInboxBody {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	if err := httpsig.VerifyDigest(r.Header.Get("Digest"), body); err != nil {
		h.logger.Warn("Rejected delivery", zap.String("reason", "digest"), zap.Error(err))
		http.Error(w, "digest mismatch", http.StatusBadRequest)
		return
	}

	params, err := httpsig.ParseSignature(r.Header.Get("Signature"))
	if err != nil || params.KeyID != h.keyID || !params.Covers("digest") {
		h.logger.Warn("Rejected delivery", zap.String("reason", "unknown key"), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	if _, err := httpsig.VerifyRequest(r, h.public); err != nil {
		h.logger.Warn("Rejected delivery", zap.String("reason", "signature"), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	doc, err := vocab.ParseProperties(body)
	if err != nil {
		http.Error(w, "body is not a JSON object", http.StatusBadRequest)
		return
	}
	var kind string
	_, _ = doc.Get("type", &kind)
	h.logger.Info("Accepted delivery",
		zap.String("key_id", params.KeyID),
		zap.String("type", kind),
		zap.Int("bytes", len(body)))

	w.WriteHeader(http.StatusAccepted)
}
