// Package events publishes interview transcript and session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"entrevistas-live-client/internal/observability/metrics"
)

// Publisher writes transcript turns and session lifecycle events to separate topics.
type Publisher struct {
	writerTurns    *kafka.Writer
	writerSessions *kafka.Writer
	principal      string
	topicTurns     string
	topicSessions  string
	enabled        bool
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicTurns    string
	TopicSessions string
	Principal     string
	Enabled       bool
}

// New creates a publisher. A nil or disabled config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicTurns:    cfg.TopicTurns,
			topicSessions: cfg.TopicSessions,
			enabled:       false,
			metrics:       m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurns", cfg.TopicTurns).
		Str("topicSessions", cfg.TopicSessions).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		// keyed by session id so a session's turns stay ordered within one partition
		writerTurns:    newWriter(cfg.TopicTurns),
		writerSessions: newWriter(cfg.TopicSessions),
		principal:      cfg.Principal,
		topicTurns:     cfg.TopicTurns,
		topicSessions:  cfg.TopicSessions,
		enabled:        true,
		metrics:        m,
	}
}

// PublishTurn publishes a transcript turn event to the turns topic.
func (p *Publisher) PublishTurn(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTurns, p.topicTurns, "turn", key, event)
}

// PublishSession publishes a session lifecycle event to the sessions topic.
func (p *Publisher) PublishSession(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSessions, p.topicSessions, "session", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	if p.writerSessions != nil {
		if e := p.writerSessions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing sessions writer")
			err = e
		}
	}
	return err
}
