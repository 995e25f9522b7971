//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"testing/fstest"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/kafka"
	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/source"
	"github.com/couchcryptid/health-dashboard-etl/internal/config"
	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/observability"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-health-aggregates"

const coverageFixture = `[
  {"State": "21", "Year": 2021, "No_Public_Coverage_Percent": 30},
  {"State": "21", "Year": 2021, "No_Public_Coverage_Percent": 40},
  {"State": 6, "Year": 2021, "No_Public_Coverage_Percent": "28.5"},
  {"State": "99", "Year": 2021, "No_Public_Coverage_Percent": 10}
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("health-dashboard-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
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

type received struct {
	Message kafka.SeriesMessage
	Key     string
	Headers map[string]string
}

func readSeries(ctx context.Context, t *testing.T, consumer *kafkago.Reader) received {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var sm kafka.SeriesMessage
	require.NoError(t, json.Unmarshal(msg.Value, &sm), "unmarshal sink message")
	return received{Message: sm, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd loads a coverage file, runs one refresh through the
// real Kafka writer and reads the published series back.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	fsys := fstest.MapFS{"coverage.json": {Data: []byte(coverageFixture)}}
	loader := source.NewLoader(fsys, source.Files{Coverage: "coverage.json"}, discardLogger())
	store := snapshot.NewStore(loader, nil, discardLogger())

	writer := kafka.NewWriter(cfg, nil, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	agg := pipeline.NewAggregator(nil, domain.DefaultFallbackDomain())
	p := pipeline.New(store, agg, writer, discardLogger(), observability.NewMetricsForTesting(), nil, time.Hour)
	require.NoError(t, p.Refresh(ctx))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := make(map[string]received, 3)
	for len(got) < 3 {
		r := readSeries(ctx, t, consumer)
		got[r.Key] = r
	}

	ky := got["coverage|KY"]
	assert.Equal(t, domain.DatasetCoverage, ky.Message.Dataset)
	assert.Equal(t, uint64(1), ky.Message.Generation)
	assert.Equal(t, []domain.Point{{Period: 2021, Value: 35}}, ky.Message.Points)
	assert.Equal(t, domain.ValueDomain{Min: 28.5, Max: 35}, ky.Message.Domain)
	assert.Equal(t, "coverage", ky.Headers["dataset"])
	assert.Equal(t, "1", ky.Headers["generation"])
	_, err := time.Parse(time.RFC3339, ky.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")

	assert.Equal(t, []domain.Point{{Period: 2021, Value: 28.5}}, got["coverage|CA"].Message.Points)

	unresolved, ok := got["coverage|unresolved"]
	require.True(t, ok, "unresolved bucket is published")
	assert.Equal(t, domain.Unresolved, unresolved.Message.Region)
}
