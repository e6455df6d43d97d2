package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Snapshot kinds, used as the subject discriminator and as a metric label.
const (
	KindPositions = "positions"
	KindReserves  = "reserves"
	KindPrices    = "prices"
)

// RawSnapshot is one unparsed message from NATS, ready for the pipeline to
// validate and apply to the store.
type RawSnapshot struct {
	Kind       string
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // call after the snapshot is applied
	NakFunc    func() // call on transient failure; the message is redelivered
}

// SubjectConfig maps one NATS subject to a snapshot kind.
type SubjectConfig struct {
	Subject      string
	Kind         string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout. Upstream indexers
// publish per-account position snapshots, per-asset reserve state, and
// oracle prices on separate subjects so they scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "lendrisk.positions.>", Kind: KindPositions, ConsumerName: "riskd-positions", StreamName: "LENDRISK_POSITIONS"},
		{Subject: "lendrisk.reserves.>", Kind: KindReserves, ConsumerName: "riskd-reserves", StreamName: "LENDRISK_RESERVES"},
		{Subject: "lendrisk.prices.>", Kind: KindPrices, ConsumerName: "riskd-prices", StreamName: "LENDRISK_PRICES"},
	}
}

// Subscriber pulls snapshot messages from JetStream and feeds them into the
// pipeline channel.
type Subscriber struct {
	js        jetstream.JetStream
	snapChan  chan<- RawSnapshot
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewSubscriber(js jetstream.JetStream, snapChan chan<- RawSnapshot, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:       js,
		snapChan: snapChan,
		log:      log,
	}
}

// Subscribe creates durable JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (s *Subscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawSnapshot{
				Kind:       cfg.Kind,
				Subject:    msg.Subject(),
				Data:       msg.Data(),
				ReceivedAt: time.Now(),
				AckFunc:    func() { msg.Ack() },
				NakFunc:    func() { msg.Nak() },
			}

			select {
			case s.snapChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		s.consumers = append(s.consumers, consumerContext)
		s.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Snapshots are state, not events: only the latest message per subject
// matters, so retention keeps 72h as a replay window and nothing more.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "LENDRISK_POSITIONS",
			Subjects:  []string{"lendrisk.positions.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "LENDRISK_RESERVES",
			Subjects:  []string{"lendrisk.reserves.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "LENDRISK_PRICES",
			Subjects:  []string{"lendrisk.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("subscribers stopped")
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
