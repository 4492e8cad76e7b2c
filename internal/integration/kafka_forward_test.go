//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/adapter/kafka"
	"github.com/couchcryptid/lightning-feed-client/internal/adapter/websocket"
	"github.com/couchcryptid/lightning-feed-client/internal/config"
	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/couchcryptid/lightning-feed-client/internal/observability"
	"github.com/couchcryptid/lightning-feed-client/internal/session"
	gorilla "github.com/gorilla/websocket"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-strikes"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("lightning-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// feedServer plays frames to the first subscriber and closes normally.
func feedServer(t *testing.T, frames ...string) string {
	t.Helper()
	upgrader := gorilla.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(gorilla.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
		_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// TestForwardStrikesToKafka runs a session against a local feed with the
// Kafka forwarder attached and reads the strikes back from the topic.
func TestForwardStrikesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	compressed, err := domain.Compress(`{"lat":-33.5,"lon":151.25,"time":1700000000000001,"pol":0,"region":5,"sig":[{},{},{}],"delay":1.2}`)
	require.NoError(t, err)

	url := feedServer(t,
		`{"lat":47.1234,"lon":8.5678,"time":1700000000,"pol":1,"region":3,"sig":[1,2,3,4,5,6,7],"delay":2.34}`,
		`[1,2,3]`,
		`garbage`,
		compressed,
	)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	metrics := observability.NewMetricsForTesting()
	fwd := kafka.NewForwarder(cfg, discardLogger(), metrics)

	var out bytes.Buffer
	d := session.New(websocket.NewDialer(10*time.Second), session.Config{URI: url, Forwarder: fwd}, &out, discardLogger(), metrics)
	require.NoError(t, d.Run(ctx))
	require.NoError(t, fwd.Close(), "flush forwarder")
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = reader.Close() })

	type forwarded struct {
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
		Region     int     `json:"region"`
		Stations   int     `json:"stations"`
		TimeUnit   string  `json:"time_unit"`
		StrikeTime string  `json:"strike_time"`
	}

	var got []forwarded
	keys := map[string]bool{}
	for len(got) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read forwarded strike")

		var f forwarded
		require.NoError(t, json.Unmarshal(msg.Value, &f))
		got = append(got, f)
		keys[string(msg.Key)] = true

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "lightning", headers["event_type"])
		assert.NotEmpty(t, headers["received_at"])
	}

	assert.Equal(t, map[string]bool{"R3": true, "R5": true}, keys)
	assert.Equal(t, forwarded{Lat: 47.1234, Lon: 8.5678, Region: 3, Stations: 7, TimeUnit: "seconds", StrikeTime: "2023-11-14T22:13:20Z"}, got[0])
	assert.Equal(t, forwarded{Lat: -33.5, Lon: 151.25, Region: 5, Stations: 3, TimeUnit: "microseconds", StrikeTime: "2023-11-14T22:13:20.000001Z"}, got[1])
}
