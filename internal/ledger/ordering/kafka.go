package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"idledger/internal/ledger/models"
	"idledger/internal/platform/kafka"
	"idledger/internal/platform/kafka/consumer"
)

// Kafka orders transactions through a single-partition topic. The partition's offset order is
// the total order; every node consumes the whole topic from the start, so redelivery after a
// restart is expected and absorbed by the log's txnId check.
type Kafka struct {
	cfg      kafka.Config
	topic    string
	producer *kgo.Client
	logger   *slog.Logger
}

type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka connects a producer and makes sure the ordering topic exists.
func NewKafka(ctx context.Context, cfg kafka.Config, topic string, opts ...KafkaOption) (*Kafka, error) {
	producer, err := kafka.NewClient(ctx, cfg,
		kgo.DefaultProduceTopic(topic),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, producer, topic, 1, 1); err != nil {
		producer.Close()
		return nil, err
	}
	k := &Kafka{cfg: cfg, topic: topic, producer: producer, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Submit produces txn and waits for the broker acknowledgement.
func (k *Kafka) Submit(ctx context.Context, txn *models.Txn) error {
	value, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("encode txn: %w", err)
	}
	rec := &kgo.Record{Key: []byte(txn.TxnID), Value: value, Partition: 0}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce txn %s: %w", txn.TxnID, err)
	}
	return nil
}

// Run consumes the topic with its own client until ctx ends or handler fails. Records that
// do not decode are logged and skipped.
func (k *Kafka) Run(ctx context.Context, handler Handler) error {
	c, err := consumer.New(ctx, k.cfg, k.topic, consumer.WithLogger(k.logger))
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Run(ctx, consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
		txn, err := models.ParseTxn(msg.Value)
		if err != nil {
			k.logger.ErrorContext(ctx, "undecodable ordered record",
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			return nil
		}
		return handler(ctx, Ordered{Txn: txn, PPTime: msg.Timestamp, Position: msg.Offset})
	}))
}

// Close releases the producer.
func (k *Kafka) Close() error {
	k.producer.Close()
	return nil
}
