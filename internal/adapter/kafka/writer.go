package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/config"
	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// SeriesMessage is the JSON value of one published aggregate series.
type SeriesMessage struct {
	Dataset     domain.Dataset         `json:"dataset"`
	Category    string                 `json:"category,omitempty"`
	Generation  uint64                 `json:"generation"`
	Region      domain.CanonicalRegion `json:"region"`
	Points      []domain.Point         `json:"points"`
	Domain      domain.ValueDomain     `json:"domain"`
	PublishedAt time.Time              `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces aggregate series to a Kafka topic.
// It implements pipeline.ViewPublisher.
type Writer struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
// Pass nil for clock to use the real clock.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, clock, logger)
}

func newWriter(w messageWriter, clock clockwork.Clock, logger *slog.Logger) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{writer: w, clock: clock, logger: logger}
}

// PublishViews serializes every series of every view and publishes them in a
// single WriteMessages call.
func (w *Writer) PublishViews(ctx context.Context, views []pipeline.View) error {
	publishedAt := w.clock.Now().UTC()

	var msgs []kafkago.Message
	for _, v := range views {
		for _, s := range v.Series {
			msg, err := serializeToMessage(v, s, publishedAt)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d series messages: %w", len(msgs), err)
	}
	w.logger.Debug("series published", "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey returns the partition key for a series: "<dataset>|<region>",
// or "<dataset>|<category>|<region>" for a view narrowed to one category.
func MessageKey(d domain.Dataset, category string, region domain.CanonicalRegion) string {
	if category == "" {
		return string(d) + "|" + region.String()
	}
	return string(d) + "|" + category + "|" + region.String()
}

// serializeToMessage marshals one series of a view into a Kafka message.
func serializeToMessage(v pipeline.View, s domain.AggregateSeries, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(SeriesMessage{
		Dataset:     v.Dataset,
		Category:    v.Filter.Category,
		Generation:  v.Generation,
		Region:      s.Key,
		Points:      s.Points,
		Domain:      v.Domain,
		PublishedAt: publishedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s series: %w", v.Dataset, err)
	}
	headers := []kafkago.Header{
		{Key: "dataset", Value: []byte(v.Dataset)},
		{Key: "generation", Value: []byte(strconv.FormatUint(v.Generation, 10))},
		{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
	}
	if v.Filter.Category != "" {
		headers = append(headers, kafkago.Header{Key: "category", Value: []byte(v.Filter.Category)})
	}
	return kafkago.Message{
		Key:     []byte(MessageKey(v.Dataset, v.Filter.Category, s.Key)),
		Value:   data,
		Headers: headers,
	}, nil
}
