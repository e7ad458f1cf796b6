package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"AuctionLedger/internal/observability"
)

// Subject layout of the host surface. Actions arrive on one subject
// per selector, verdicts on a single callback subject, and the engine
// publishes transfer requests for the host to execute.
const (
	ActionSubjectPrefix   = "auction.actions."
	CallbackSubject       = "auction.callbacks.verdict"
	TransferSubjectPrefix = "auction.transfers.requested."

	ActionStream   = "AUCTION_ACTIONS"
	CallbackStream = "AUCTION_CALLBACKS"
	TransferStream = "AUCTION_TRANSFERS"
)

// RawMessage is an undecoded message pulled from a stream, ready for
// the parser. Ack after the processor consumed it, Nak to redeliver.
type RawMessage struct {
	Subject  string
	Data     []byte
	Received time.Time
	AckFunc  func()
	NakFunc  func()
}

// Subscriber feeds host messages into the processing loop via
// msgChan. Consumers are durable with explicit ack so a crash between
// pull and ack redelivers; the processor's idempotency layer absorbs
// the duplicate.
type Subscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	metrics   *observability.Metrics
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		js:      js,
		msgChan: msgChan,
		metrics: metrics,
		log:     observability.NewLogger("gateway.subscriber"),
	}
}

type consumerConfig struct {
	stream  string
	subject string
	durable string
}

func defaultConsumers() []consumerConfig {
	return []consumerConfig{
		{stream: ActionStream, subject: ActionSubjectPrefix + ">", durable: "auction-actions"},
		{stream: CallbackStream, subject: CallbackSubject, durable: "auction-callbacks"},
	}
}

// Subscribe creates the durable consumers and starts delivery.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	for _, cfg := range defaultConsumers() {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, cfg.stream, jetstream.ConsumerConfig{
			Durable:       cfg.durable,
			FilterSubject: cfg.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.durable, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Subject:  msg.Subject(),
				Data:     msg.Data(),
				Received: time.Now(),
				AckFunc:  func() { msg.Ack() },
				NakFunc:  func() { msg.Nak() },
			}
			if s.metrics != nil {
				s.metrics.MessagesReceived.WithLabelValues(msg.Subject()).Inc()
			}

			select {
			case s.msgChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.durable, err)
		}

		s.consumers = append(s.consumers, consumerContext)
		s.log.Info().Str("subject", cfg.subject).Str("consumer", cfg.durable).Msg("subscribed")
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

// EnsureStreams creates the required JetStream streams if they don't
// exist. Streams use file storage so host messages survive a broker
// restart.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("gateway.streams")
	streams := []jetstream.StreamConfig{
		{
			Name:      ActionStream,
			Subjects:  []string{ActionSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      CallbackStream,
			Subjects:  []string{"auction.callbacks.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      TransferStream,
			Subjects:  []string{TransferSubjectPrefix + ">"},
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
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("gateway.nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
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
