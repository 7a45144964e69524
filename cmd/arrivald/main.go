// Command arrivald is the arrival engine daemon. It runs one monitoring
// session per user, ingests device fixes over HTTP and MQTT, and fans
// decisions out to the configured notification sinks.
//
// Usage:
//
//	arrivald
//	API_PORT=8080 NOTIFICATION_SINKS=log,kafka arrivald

// @title Arrival Engine API
// @version 1.0.0
// @description Arrival detection for restaurant guests: per-user sessions, device fix ingest, and points of interest.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @license.name MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/arrival/internal/api"
	"github.com/albapepper/arrival/internal/api/handler"
	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/cache"
	"github.com/albapepper/arrival/internal/config"
	"github.com/albapepper/arrival/internal/db"
	"github.com/albapepper/arrival/internal/listener"
	"github.com/albapepper/arrival/internal/location"
	"github.com/albapepper/arrival/internal/maintenance"
	"github.com/albapepper/arrival/internal/notifications"
	"github.com/albapepper/arrival/internal/store"

	_ "github.com/albapepper/arrival/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Daemon stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// --- Data collaborators ---
	poiCache := cache.New[[]arrival.POI](cfg.CacheEnabled)
	defer poiCache.Close()
	pois := store.NewCachedPOIs(store.NewPOIStore(pool), poiCache, cfg.POICacheTTL)
	logger.Info("POI cache initialized", "enabled", cfg.CacheEnabled, "ttl", cfg.POICacheTTL)

	activity := store.NewActivityStore(pool)
	decisionLog := store.NewDecisionLog(pool)

	var waitlist arrival.WaitlistLookup = store.NewNoWaitlist(logger)
	if cfg.WaitlistLookupEnabled {
		waitlist = store.NewWaitlistStore(pool)
	}

	// --- MQTT (optional) ---
	var mqttClient mqtt.Client
	if cfg.MQTTEnabled {
		mqttClient, err = connectMQTT(cfg)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(250)
		logger.Info("MQTT connected", "broker", cfg.MQTTBroker, "client_id", cfg.MQTTClientID)
	}

	// --- Notification sinks ---
	fanout, closeSinks, err := buildSinks(cfg, decisionLog, mqttClient, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	dispatcher := notifications.NewDispatcher(fanout, cfg.NotificationQueueSize, logger)

	// --- Sessions ---
	manager := arrival.NewManager(cfg.Engine, arrival.Deps{
		POIs: pois,
		Lookups: arrival.Lookups{
			Reservations: store.NewReservationStore(pool),
			Waitlist:     waitlist,
			Activity:     activity,
		},
		Sink: dispatcher,
	}, logger)

	if mqttClient != nil {
		bridge := location.NewMQTTBridge(mqttClient, manager, logger)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()
	}

	// --- HTTP server ---
	h := handler.New(manager, pois, activity, pool, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(h, cfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The dispatcher outlives the errgroup so it can drain what sessions
	// emit while they stop.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		listener.New(cfg.DatabaseURL, pois, manager, logger).Run(gctx)
		return nil
	})
	g.Go(func() error {
		maintenance.Start(gctx, manager, decisionLog, maintenance.Config{
			ReapInterval:  cfg.ReapInterval,
			IdleTimeout:   cfg.SessionIdleTimeout,
			PurgeInterval: cfg.PurgeInterval,
			Retention:     cfg.DecisionRetention,
		}, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting Arrival Engine API",
			"addr", addr,
			"environment", cfg.Environment,
			"sinks", cfg.NotificationSinks,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		shutdown(shutdownCtx, srv, manager, stopDispatch, logger)
		return nil
	})

	err = g.Wait()
	stopDispatch()
	<-dispatchDone
	logger.Info("Server stopped", "sessions", manager.Len(), "dropped_decisions", dispatcher.Dropped())
	return err
}

type httpServer interface {
	Shutdown(ctx context.Context) error
}

type sessionSet interface {
	StopAll()
}

// shutdown stops decision producers before the dispatcher: first the API so
// no new sessions start, then every session, and only then the dispatch
// worker, whose final drain picks up whatever the sessions emitted.
func shutdown(ctx context.Context, srv httpServer, sessions sessionSet, stopDispatch context.CancelFunc, logger *slog.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	sessions.StopAll()
	logger.Info("Sessions stopped")
	stopDispatch()
}

func connectMQTT(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	return client, nil
}

// buildSinks assembles the fanout named by NOTIFICATION_SINKS. The returned
// func closes any broker clients it opened.
func buildSinks(cfg *config.Config, decisionLog *store.DecisionLog, mqttClient mqtt.Client, logger *slog.Logger) (notifications.Fanout, func(), error) {
	var (
		fanout  notifications.Fanout
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Sink close failed", "error", err)
			}
		}
	}

	if cfg.SinkEnabled(config.SinkLog) {
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkLog, Sink: notifications.NewLogSink(logger)})
	}
	if cfg.SinkEnabled(config.SinkDB) {
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkDB, Sink: decisionLog})
	}
	if cfg.SinkEnabled(config.SinkRabbitMQ) {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		closers = append(closers, conn.Close)
		sink, err := notifications.NewRabbitMQSink(conn)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkRabbitMQ, Sink: sink})
	}
	if cfg.SinkEnabled(config.SinkKafka) {
		sink := notifications.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, sink.Close)
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkKafka, Sink: sink})
	}
	if cfg.SinkEnabled(config.SinkMQTT) {
		if mqttClient == nil {
			closeAll()
			return nil, nil, errors.New("mqtt sink requires MQTT_ENABLED=true")
		}
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkMQTT, Sink: notifications.NewMQTTSink(mqttClient)})
	}

	if len(fanout) == 0 {
		logger.Warn("No notification sinks enabled, falling back to log")
		fanout = append(fanout, notifications.NamedSink{Name: config.SinkLog, Sink: notifications.NewLogSink(logger)})
	}
	names := make([]string, len(fanout))
	for i, s := range fanout {
		names[i] = s.Name
	}
	logger.Info("Notification sinks ready", "sinks", names)
	return fanout, closeAll, nil
}
