package federation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthEndpoint provides HTTP health check endpoints backed by a
// dispatcher's counters
type HealthEndpoint struct {
	dispatcher *Dispatcher
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

// NewHealthEndpoint creates health check HTTP handlers. A nil gatherer
// serves the default registry on /metrics.
func NewHealthEndpoint(dispatcher *Dispatcher, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthEndpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &HealthEndpoint{
		dispatcher: dispatcher,
		gatherer:   gatherer,
		logger:     logger,
	}
}

// RegisterHandlers registers HTTP handlers
func (he *HealthEndpoint) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", he.handleHealth)
	mux.HandleFunc("/health/live", he.handleLiveness)
	mux.Handle("/metrics", promhttp.HandlerFor(he.gatherer, promhttp.HandlerOpts{}))
}

type healthResponse struct {
	Status        string  `json:"status"`
	DeliveryRate  float64 `json:"delivery_rate"`
	Broadcasts    int64   `json:"broadcasts"`
	Attempts      int64   `json:"attempts"`
	Delivered     int64   `json:"delivered"`
	LastBroadcast string  `json:"last_broadcast,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// handleHealth reports delivery health. Remote peers failing does not make
// this instance unavailable, so the status code is always 200.
func (he *HealthEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := he.dispatcher.Stats()

	rate := 100.0
	if stats.Attempts > 0 {
		rate = float64(stats.Delivered) / float64(stats.Attempts) * 100
	}

	status := "healthy"
	if rate < 50 {
		status = "degraded"
	}

	resp := healthResponse{
		Status:       status,
		DeliveryRate: rate,
		Broadcasts:   stats.Broadcasts,
		Attempts:     stats.Attempts,
		Delivered:    stats.Delivered,
		Timestamp:    time.Now().Format(time.RFC3339),
	}
	if !stats.LastBroadcast.IsZero() {
		resp.LastBroadcast = stats.LastBroadcast.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		he.logger.Debug("Failed to write health response", zap.Error(err))
	}
}

// handleLiveness checks if the service is alive
func (he *HealthEndpoint) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// StartMetricsServer serves the health endpoints on their own port
func StartMetricsServer(port int, he *HealthEndpoint, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	he.RegisterHandlers(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return server
}
