package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ladder pipeline.
type Metrics struct {
	// Ingestion
	BookUpdatesTotal  *prometheus.CounterVec // labels: ticker
	TradesTotal       *prometheus.CounterVec // labels: ticker
	CrossedBooksTotal *prometheus.CounterVec // labels: ticker
	FeedResubscribes  prometheus.Counter
	DroppedTicks      prometheus.Counter // out-of-order ticks dropped by aggregators

	// Candles
	CandlesClosedTotal *prometheus.CounterVec // labels: tf
	CandleUpdateDur    prometheus.Histogram

	// Event log
	EventsWrittenTotal    *prometheus.CounterVec // labels: kind
	EventLogBytes         prometheus.Gauge
	SnapshotFlushDur      prometheus.Histogram
	WriterQueueSaturation prometheus.Gauge // len/cap × 100 of the writer channel

	// Tailer
	EventsTailedTotal   prometheus.Counter
	MalformedLinesTotal prometheus.Counter
	TailerResets        prometheus.Counter // rotation/truncation detections

	// Cycle
	CycleNumber   prometheus.Gauge
	CycleBytesSec prometheus.Gauge

	// Redis mirror
	RedisPublishDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedEvents      prometheus.Counter

	// Candle store
	SQLiteCommitDur prometheus.Histogram

	// Trading path
	AuthDenialsTotal  *prometheus.CounterVec // labels: reason
	OrdersPlacedTotal prometheus.Counter
	OrdersFailedTotal prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BookUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_book_updates_total",
			Help: "Book snapshots and deltas applied (by ticker)",
		}, []string{"ticker"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_trades_total",
			Help: "Trades ingested (by ticker)",
		}, []string{"ticker"}),
		CrossedBooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_crossed_books_total",
			Help: "Crossed-book states observed (by ticker)",
		}, []string{"ticker"}),
		FeedResubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_feed_resubscribes_total",
			Help: "Feed resubscriptions after disconnect",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_dropped_ticks_total",
			Help: "Out-of-order mid ticks dropped by candle aggregators",
		}),

		CandlesClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_candles_closed_total",
			Help: "Candles closed, including gap fills (by timeframe)",
		}, []string{"tf"}),
		CandleUpdateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_candle_update_duration_seconds",
			Help:    "Multi-timeframe fan-out latency per tick",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		EventsWrittenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_events_written_total",
			Help: "Events appended to the JSONL log (by kind)",
		}, []string{"kind"}),
		EventLogBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_event_log_bytes",
			Help: "Bytes written to the event log this cycle",
		}),
		SnapshotFlushDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_snapshot_flush_duration_seconds",
			Help:    "Snapshot temp-write + rename latency",
			Buckets: prometheus.DefBuckets,
		}),
		WriterQueueSaturation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_writer_queue_saturation_pct",
			Help: "Writer channel fill percentage (len/cap * 100)",
		}),

		EventsTailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_events_tailed_total",
			Help: "Events delivered by the tailer to this consumer",
		}),
		MalformedLinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_malformed_lines_total",
			Help: "Unparseable event log lines skipped",
		}),
		TailerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_tailer_resets_total",
			Help: "Tailer offset resets after rotation or truncation",
		}),

		CycleNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_cycle_number",
			Help: "Current event log cycle",
		}),
		CycleBytesSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_cycle_bytes_per_sec",
			Help: "Event log write rate this cycle",
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_redis_publish_duration_seconds",
			Help:    "Redis event publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_redis_buffered_events_total",
			Help: "Events buffered locally while the breaker was open",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_sqlite_commit_duration_seconds",
			Help:    "Candle store batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		AuthDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_auth_denials_total",
			Help: "Real-order authorization denials (by reason)",
		}, []string{"reason"}),
		OrdersPlacedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_orders_placed_total",
			Help: "Real orders broadcast successfully",
		}),
		OrdersFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_orders_failed_total",
			Help: "Real orders rejected or failed at broadcast",
		}),
	}

	prometheus.MustRegister(
		m.BookUpdatesTotal,
		m.TradesTotal,
		m.CrossedBooksTotal,
		m.FeedResubscribes,
		m.DroppedTicks,
		m.CandlesClosedTotal,
		m.CandleUpdateDur,
		m.EventsWrittenTotal,
		m.EventLogBytes,
		m.SnapshotFlushDur,
		m.WriterQueueSaturation,
		m.EventsTailedTotal,
		m.MalformedLinesTotal,
		m.TailerResets,
		m.CycleNumber,
		m.CycleBytesSec,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedEvents,
		m.SQLiteCommitDur,
		m.AuthDenialsTotal,
		m.OrdersPlacedTotal,
		m.OrdersFailedTotal,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastEventTime  time.Time `json:"last_event_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Tickers        []string  `json:"tickers"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetTickers(tickers []string) {
	h.mu.Lock()
	h.Tickers = tickers
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastEventTime   string   `json:"last_event_time"`
		EventAge        string   `json:"event_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Tickers         []string `json:"tickers"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Tickers:         h.Tickers,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
