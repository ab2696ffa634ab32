// Package kafkabus publishes room reports to Kafka and consumes remote
// measurements from it.
package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

// Config holds Kafka configuration
type Config struct {
	Enabled           bool     `json:"enabled"`
	Brokers           []string `json:"brokers"`
	ReportsTopic      string   `json:"reports_topic"`
	MeasurementsTopic string   `json:"measurements_topic"`
	GroupID           string   `json:"group_id"`
}

// DefaultConfig returns default Kafka configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		Brokers:           []string{"localhost:9092"},
		ReportsTopic:      "hifiwifi.reports",
		MeasurementsTopic: "hifiwifi.measurements",
		GroupID:           "hifiwifid",
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per report, keyed by room so a room's
// reports stay in one partition
type Publisher struct {
	writer messageWriter
	logger *logx.Logger
}

// NewPublisher creates a publisher for cfg.ReportsTopic
func NewPublisher(cfg *Config, logger *logx.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.ReportsTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger.WithComponent("kafka-bus"),
	}
}

// Name identifies the sink in logs and metrics
func (p *Publisher) Name() string {
	return "kafka"
}

// PublishReport writes the report as JSON
func (p *Publisher) PublishReport(ctx context.Context, report *pkg.RoomReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(report.Room()),
		Value: data,
		Time:  report.Timestamp(),
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(report.Recommendation.Action)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write report for %s: %w", report.Room(), err)
	}
	p.logger.Debug("Report published", "room", report.Room(), "bytes", len(data))
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// MeasurementHandler processes one decoded measurement
type MeasurementHandler func(ctx context.Context, m classifier.Measurement) error

// Consumer reads measurements submitted by remote probes
type Consumer struct {
	reader messageReader
	logger *logx.Logger
}

// NewConsumer creates a consumer group reader on cfg.MeasurementsTopic
func NewConsumer(cfg *Config, logger *logx.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.MeasurementsTopic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		}),
		logger: logger.WithComponent("kafka-bus"),
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are logged and
// committed so they do not block the partition; handler errors are logged
// and the message is committed as well.
func (c *Consumer) Run(ctx context.Context, handle MeasurementHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch measurement: %w", err)
		}

		var m classifier.Measurement
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			c.logger.Warn("Dropping undecodable measurement", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else if err := handle(ctx, m); err != nil {
			c.logger.Error("Measurement handler failed", "room", m.RoomID, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
