// Command strikefeed subscribes to the Blitzortung lightning feed and prints
// one line per received frame until interrupted or the server closes the
// connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	httpadapter "github.com/couchcryptid/lightning-feed-client/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/lightning-feed-client/internal/adapter/kafka"
	"github.com/couchcryptid/lightning-feed-client/internal/adapter/websocket"
	"github.com/couchcryptid/lightning-feed-client/internal/config"
	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/couchcryptid/lightning-feed-client/internal/observability"
	"github.com/couchcryptid/lightning-feed-client/internal/session"
)

var separator = strings.Repeat("-", 60)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Strike forwarding is feature-flagged via KAFKA_BROKERS.
	var forwarder session.Forwarder
	var kafkaForwarder *kafkaadapter.Forwarder
	if cfg.KafkaEnabled {
		kafkaForwarder = kafkaadapter.NewForwarder(cfg, logger, metrics)
		forwarder = kafkaForwarder
		logger.Info("kafka forwarding enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka forwarding disabled")
	}

	driver := session.New(websocket.NewDialer(cfg.HandshakeTimeout), session.Config{
		URI:             cfg.FeedURL,
		SubscribeCode:   cfg.SubscribeCode,
		BadFrameLogRate: cfg.BadFrameLogRate,
		Forwarder:       forwarder,
	}, os.Stdout, logger, metrics)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, driver, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Connecting to %s...\n", cfg.FeedURL)
	fmt.Println(separator)
	fmt.Println(domain.LegendLine)
	fmt.Println(separator)

	runErr := driver.Run(ctx)
	if ctx.Err() != nil {
		fmt.Println("\nShutting down...")
	}
	logger.Info("shutting down", "state", driver.State().String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if kafkaForwarder != nil {
		if err := kafkaForwarder.Close(); err != nil {
			logger.Error("kafka forwarder close error", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("session failed", "error", runErr)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
