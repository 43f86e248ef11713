// Package kafka publishes file events to a Kafka topic and writes a delivery
// receipt next to each published file.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/ratelimit"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// Option names.
const (
	OptEndpoint  = "kafka-endpoint"
	OptTopic     = "kafka-topic"
	OptMarkerExt = "kafka-marker-ext"
	OptRate      = "kafka-rate"
	OptTimeout   = "kafka-timeout"
	OptClientID  = "kafka-client-id"
)

// Defaults.
const (
	DefaultTopic     = "file-events"
	DefaultMarkerExt = ".kafka"
	DefaultTimeout   = 10 * time.Second
	DefaultClientID  = "dropwatch"
)

// ProducerFactory connects a producer. Tests substitute sarama mocks.
type ProducerFactory func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Action publishes events to Kafka.
type Action struct {
	name        string
	logger      *slog.Logger
	newProducer ProducerFactory

	brokers   []string
	topic     string
	markerExt string
	config    *sarama.Config
	limiter   *ratelimit.KeyedRateLimiter

	mu       sync.Mutex
	producer sarama.SyncProducer
}

var (
	_ plugin.Action      = (*Action)(nil)
	_ plugin.Contributor = (*Action)(nil)
	_ plugin.Initializer = (*Action)(nil)
)

// Factory returns the catalog factory for the kafka action.
func Factory(l *slog.Logger) plugin.Factory {
	return func(name string) plugin.Plugin {
		return New(name, l, sarama.NewSyncProducer)
	}
}

// New creates a kafka action that connects through newProducer.
func New(name string, l *slog.Logger, newProducer ProducerFactory) *Action {
	return &Action{
		name:        name,
		logger:      l.With(logger.KeyComponent, "action", logger.KeyAction, name),
		newProducer: newProducer,
		topic:       DefaultTopic,
		markerExt:   DefaultMarkerExt,
	}
}

// Name returns the plugin name.
func (a *Action) Name() string { return a.name }

// RegisterArguments adds the --kafka-* options.
func (a *Action) RegisterArguments(s *schema.Scope) error {
	if err := s.String(OptEndpoint, "", "Kafka broker address, comma separated for several"); err != nil {
		return err
	}
	if err := s.Required(OptEndpoint); err != nil {
		return err
	}
	if err := s.String(OptTopic, DefaultTopic, "Kafka topic events are published to"); err != nil {
		return err
	}
	if err := s.String(OptMarkerExt, DefaultMarkerExt, "Suffix of the delivery receipt written next to each file"); err != nil {
		return err
	}
	if err := s.Float(OptRate, 0, "Maximum messages per second (0 = unlimited)"); err != nil {
		return err
	}
	if err := s.Duration(OptTimeout, DefaultTimeout, "Broker dial and produce timeout"); err != nil {
		return err
	}
	return s.String(OptClientID, DefaultClientID, "Client ID reported to the brokers")
}

// Init reads the options. The producer is connected on the first event.
func (a *Action) Init(_ context.Context, v *schema.Values) error {
	for _, b := range strings.Split(v.String(OptEndpoint), ",") {
		if b = strings.TrimSpace(b); b != "" {
			a.brokers = append(a.brokers, b)
		}
	}
	if len(a.brokers) == 0 {
		return errors.MissingOptionf("--%s names no broker", OptEndpoint)
	}

	a.topic = v.String(OptTopic)
	if a.topic == "" {
		return errors.Validationf("--%s must not be empty", OptTopic)
	}
	a.markerExt = v.String(OptMarkerExt)
	if a.markerExt == "" {
		return errors.Validationf("--%s must not be empty", OptMarkerExt)
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = v.String(OptClientID)
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 0
	if timeout := v.Duration(OptTimeout); timeout > 0 {
		cfg.Net.DialTimeout = timeout
		cfg.Producer.Timeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeValidation, "kafka configuration")
	}
	a.config = cfg

	if rate := v.Float(OptRate); rate > 0 {
		a.limiter = ratelimit.New(rate, 1)
	}
	return nil
}

// Handle publishes ev and writes the receipt once the broker confirms it.
// Receipts themselves are skipped.
func (a *Action) Handle(ctx context.Context, ev domain.FileEvent) error {
	if strings.HasSuffix(ev.Path, a.markerExt) {
		a.logger.Debug("skipping receipt file", logger.KeyPath, ev.Path)
		return nil
	}

	value, err := BuildMessage(ev)
	if err != nil {
		return err
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, a.topic); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	producer, err := a.connect()
	if err != nil {
		return err
	}

	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(ev.Path),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Path, a.topic, err)
	}

	receipt := ev.Path + a.markerExt
	if err := os.WriteFile(receipt, Receipt(a.topic, partition, offset), 0o644); err != nil { //nolint:gosec // receipts are not sensitive
		return errors.Wrapf(err, errors.CodeIO, "write receipt %s", receipt)
	}

	a.logger.Info("published",
		logger.KeyPath, ev.Path,
		"topic", a.topic,
		"partition", partition,
		"offset", offset,
		"receipt", receipt,
	)
	return nil
}

// connect returns the producer, creating it on first use.
func (a *Action) connect() (sarama.SyncProducer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.producer != nil {
		return a.producer, nil
	}
	if a.config == nil {
		return nil, errors.Internal("kafka action used before Init")
	}

	p, err := a.newProducer(a.brokers, a.config)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", strings.Join(a.brokers, ","), err)
	}
	a.producer = p
	a.logger.Info("connected", "brokers", a.brokers)
	return p, nil
}

// Close closes the producer if one was created.
func (a *Action) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.producer == nil {
		return nil
	}
	err := a.producer.Close()
	a.producer = nil
	return err
}
