package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/dispatcher"
	"github.com/mofa-org/stsd/internal/egress"
	"github.com/mofa-org/stsd/internal/httpapi"
	"github.com/mofa-org/stsd/internal/ingress"
	"github.com/mofa-org/stsd/internal/logging"
	"github.com/mofa-org/stsd/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Level: "INFO", Format: "json"})
		log.Error().Err(err).Msg("Fatal misconfiguration")
		os.Exit(2)
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	log.Info().
		Str("mode", string(cfg.Mode)).
		Int("minSegmentLength", cfg.MinSegmentLength).
		Int("maxSegmentLength", cfg.MaxSegmentLength).
		Str("logLevel", cfg.LogLevel).
		Msg("Starting streaming text segmenter & dispatcher")

	log.Info().
		Bool("enabled", cfg.EnableBackpressure).
		Float64("lowWaterMark", cfg.LowWaterMark).
		Float64("highWaterMark", cfg.HighWaterMark).
		Msg("Backpressure configuration")

	log.Info().
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Strs("brokers", cfg.Kafka.Brokers).
		Msg("Kafka configuration")

	// Observability HTTP server (Prometheus metrics, health probes)
	var obsServer *observability.Server
	if cfg.Observability.MetricsEnabled {
		obsServer = observability.NewServer(":" + cfg.Observability.MetricsPort)
		obsServer.Start()
	}

	publisher := egress.NewPublisher(cfg)
	defer publisher.Close()

	// Kafka topics must exist before they can be read, so participant
	// ports are declared up front for the Kafka source; discovery within
	// the scheduler remains dynamic regardless.
	var src ingress.Source
	if cfg.Kafka.Enabled {
		participants := splitList(os.Getenv("KAFKA_PARTICIPANTS"))
		if len(participants) == 0 {
			log.Warn().Msg("KAFKA_PARTICIPANTS is empty; only reserved ports will be consumed")
		}
		src = ingress.NewKafkaSource(ingress.FromConfig(cfg, participants))
	} else {
		log.Warn().Msg("Kafka disabled; accepting events only via the control HTTP API")
		src = ingress.NewChannelSource(256)
	}

	d := dispatcher.New(cfg, src, publisher, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- d.Run(ctx) }()

	apiServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(d),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Control HTTP server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Control HTTP server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		log.Info().Msg("Received shutdown signal")
	case err := <-loopDone:
		if err != nil {
			log.Error().Err(err).Msg("Event loop failed")
		} else {
			log.Info().Msg("Event loop stopped")
		}
	}

	// Graceful shutdown: stop the source, cancel the loop, close servers.
	// The loop's return is not awaited.
	if err := src.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event source")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down control HTTP server")
	}
	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down observability server")
		}
	}

	log.Info().Msg("Dispatcher stopped")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
