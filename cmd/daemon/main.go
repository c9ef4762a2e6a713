// The daemon is the headless ingestion process: it subscribes to
// exchange feeds per market, maintains order books and candles, and
// persists the append-only event log plus the recoverable snapshot
// under the data directory. Consumers (gui, bots) tail the log.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dydx-ladder/config"
	"dydx-ladder/internal/candlestore"
	"dydx-ladder/internal/consumerhub"
	"dydx-ladder/internal/cycle"
	"dydx-ladder/internal/datadir"
	"dydx-ladder/internal/debughooks"
	"dydx-ladder/internal/eventlog"
	"dydx-ladder/internal/feed"
	"dydx-ladder/internal/logger"
	"dydx-ladder/internal/metrics"
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/notification"
	"dydx-ladder/internal/pubsub"
	"dydx-ladder/internal/runtime"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("daemon", slog.LevelInfo)

	cfg := config.Load()
	dataDir := datadir.Dir()
	debughooks.Init(dataDir)
	slogger.Info("starting", slog.String("data_dir", dataDir))

	tickers := cfg.ParseTickers()
	tfs := cfg.ParseTFs()
	log.Printf("[daemon] tickers: %v, TFs: %v seconds", tickers, tfs)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetTickers(tickers)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Event log writer (single sink, exclusive lock) ----
	writer, err := eventlog.NewWriter(dataDir)
	if err != nil {
		log.Printf("[daemon] FATAL: %v", err)
		os.Exit(1)
	}
	defer writer.Close()
	writer.OnAppend = func(kind string, n int) {
		prom.EventsWrittenTotal.WithLabelValues(kind).Inc()
		prom.EventLogBytes.Set(float64(writer.BytesWritten()))
	}

	// ---- Cycle controller ----
	controller, err := cycle.NewController(dataDir, writer)
	if err != nil {
		log.Printf("[daemon] FATAL: %v", err)
		os.Exit(1)
	}
	prom.CycleNumber.Set(float64(controller.Stats().CycleNumber))

	// ---- Optional alerting ----
	var backends notification.Multi
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	var notifier notification.Notifier
	if len(backends) > 0 {
		notifier = backends
	}
	controller.OnRotate = func(archive string, stats *cycle.Stats) {
		prom.CycleNumber.Set(float64(stats.CycleNumber))
		if notifier != nil {
			_ = notifier.Send(context.Background(),
				notification.LogRotated(stats.CycleNumber-1, archive, stats.PrevCycleBytes))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writerCh := make(chan model.Event, 4096)
	var mirrors []chan<- model.Event

	// ---- Optional Redis mirror ----
	if cfg.RedisAddr != "" {
		pub, err := pubsub.New(pubsub.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[daemon] redis mirror disabled: %v", err)
		} else {
			defer pub.Close()
			pub.OnPublish = func(dur time.Duration) { prom.RedisPublishDur.Observe(dur.Seconds()) }
			pub.OnBuffer = func() { prom.RedisBufferedEvents.Inc() }
			prevStateChange := pub.Breaker().OnStateChange
			pub.Breaker().OnStateChange = func(from, to pubsub.State) {
				if prevStateChange != nil {
					prevStateChange(from, to)
				}
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == pubsub.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			redisCh := make(chan model.Event, 4096)
			mirrors = append(mirrors, redisCh)
			go pub.Run(ctx, redisCh)
			health.StartLivenessChecker(ctx, pub.Client(), nil, 15*time.Second)
		}
	}

	// ---- Optional websocket fan-out ----
	if cfg.HubAddr != "" {
		hub := consumerhub.NewHub()
		hubCh := make(chan model.Event, 4096)
		mirrors = append(mirrors, hubCh)
		go hub.Run(ctx, hubCh)
		go serveHub(cfg.HubAddr, hub)
	}

	// ---- Optional candle store (replay savepoints) ----
	var candleCh chan model.TickerCandle
	if cfg.SQLitePath != "" {
		store, err := candlestore.New(candlestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[daemon] candle store disabled: %v", err)
		} else {
			defer store.Close()
			store.OnCommit = func(n int, dur time.Duration) { prom.SQLiteCommitDur.Observe(dur.Seconds()) }
			candleCh = make(chan model.TickerCandle, 1024)
			go store.Run(ctx, candleCh)
		}
	}

	// ---- Feed: real websocket or simulator ----
	var client feed.Client
	if cfg.FeedURL != "" {
		ws, err := feed.NewWS(feed.WSConfig{URL: cfg.FeedURL})
		if err != nil {
			log.Printf("[daemon] FATAL: %v", err)
			os.Exit(1)
		}
		client = ws
	} else {
		log.Println("[daemon] no feed URL configured, using the random-walk simulator")
		client = feed.NewSim(feed.SimConfig{
			StartMid: map[string]float64{"ETH-USD": 3000, "BTC-USD": 60000, "SOL-USD": 150},
		})
	}
	health.SetFeedConnected(true)

	// ---- Writer, cycle controller, ingestion ----
	go writer.Run(ctx, writerCh)
	go controller.Run(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.CycleBytesSec.Set(controller.Stats().BytesPerSec)
				prom.WriterQueueSaturation.Set(float64(len(writerCh)) / float64(cap(writerCh)) * 100)
				health.SetLastEventTime(time.Now())
			}
		}
	}()

	daemon := &runtime.Daemon{
		Tickers:  tickers,
		Feed:     client,
		TFs:      tfs,
		WriterCh: writerCh,
		Mirrors:  mirrors,
		CandleCh: candleCh,
		Metrics:  prom,
		Notifier: notifier,
	}

	if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[daemon] FATAL: %v", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[daemon] shutdown complete")
}
