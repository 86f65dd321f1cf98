// Package api serves meter readings, usage buckets and the live dashboard
// over HTTP and websocket.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/dashboard"
	"github.com/jgoulah/meterwatch/internal/database"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// Refresher triggers an immediate scrape
type Refresher interface {
	Collect(ctx context.Context) (*models.Reading, error)
}

// Options configures a Server. Refresher, Board and Settings are optional;
// their endpoints answer 503 when unset.
type Options struct {
	DB           *database.DB
	Aggregator   *usage.Aggregator
	Refresher    Refresher
	SnapshotFile string
	Board        *dashboard.Board
	Settings     *alert.SettingsStore
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
	PushEvery    time.Duration
}

// Server holds the HTTP handlers and websocket clients
type Server struct {
	opts     Options
	now      func() time.Time
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool
	writeMu   sync.Mutex // one writer per connection at a time
}

// New creates a server
func New(opts Options) *Server {
	if opts.PushEvery <= 0 {
		opts.PushEvery = 2 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		opts: opts,
		now:  time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/meter_data.json", s.meterDataFile).Methods("GET")
	r.HandleFunc("/api/meter-data", s.meterData).Methods("GET")
	r.HandleFunc("/api/refresh", s.refresh).Methods("GET", "POST")
	r.HandleFunc("/api/status", s.status).Methods("GET")
	r.HandleFunc("/api/historical-data", s.historicalData).Methods("GET")
	r.HandleFunc("/api/{granularity:10min|hourly|daily|weekly|monthly}-usage", s.usageBuckets).Methods("GET")
	r.HandleFunc("/api/usage-summary", s.usageSummary).Methods("GET")

	r.HandleFunc("/api/dashboard", s.dashboardView).Methods("GET")
	r.HandleFunc("/api/dashboard/granularity/{granularity}", s.selectGranularity).Methods("POST")
	r.HandleFunc("/api/alert-settings", s.getAlertSettings).Methods("GET")
	r.HandleFunc("/api/alert-settings", s.putAlertSettings).Methods("PUT", "POST")
	r.HandleFunc("/ws/live", s.live).Methods("GET")

	return r
}

// Serve listens on addr until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.opts.Logger.Info("http_listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
