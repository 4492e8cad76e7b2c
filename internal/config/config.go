package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultFeedURL is the Blitzortung WebSocket endpoint.
const DefaultFeedURL = "wss://ws1.blitzortung.org/"

// httpDisabled turns the health/metrics server off when used as HTTP_ADDR.
const httpDisabled = "off"

// Config holds all client settings, populated from environment variables.
type Config struct {
	FeedURL          string
	SubscribeCode    int
	HandshakeTimeout time.Duration

	HTTPAddr        string // empty when the health/metrics server is disabled
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// BadFrameLogRate caps warnings about undecodable frames per second.
	BadFrameLogRate float64

	// Kafka strike forwarding, enabled when brokers are set.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	handshakeTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("HANDSHAKE_TIMEOUT", "45s"))
	if err != nil || handshakeTimeout <= 0 {
		return nil, errors.New("invalid HANDSHAKE_TIMEOUT")
	}

	subscribeCode, err := strconv.Atoi(sharedcfg.EnvOrDefault("SUBSCRIBE_CODE", "111"))
	if err != nil || subscribeCode <= 0 {
		return nil, errors.New("invalid SUBSCRIBE_CODE")
	}

	badFrameLogRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("BAD_FRAME_LOG_RATE", "1"), 64)
	if err != nil || badFrameLogRate < 0 {
		return nil, errors.New("invalid BAD_FRAME_LOG_RATE")
	}

	httpAddr := sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080")
	if httpAddr == httpDisabled {
		httpAddr = ""
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		FeedURL:          sharedcfg.EnvOrDefault("FEED_URL", DefaultFeedURL),
		SubscribeCode:    subscribeCode,
		HandshakeTimeout: handshakeTimeout,
		HTTPAddr:         httpAddr,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout:  shutdownTimeout,
		BadFrameLogRate:  badFrameLogRate,
		KafkaBrokers:     brokers,
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lightning-strikes"),
		KafkaEnabled:     len(brokers) > 0,
	}

	u, err := url.Parse(cfg.FeedURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, errors.New("FEED_URL must be a ws:// or wss:// URL")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, errors.New("LOG_FORMAT must be json or text")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}
