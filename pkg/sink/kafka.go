package sink

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/logevents/pkg/compression"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"go.uber.org/zap"
)

// keyFields are tried in order to find a message key for a record
var keyFields = []string{models.PrimaryKeyLogID, "logid"}

// KafkaSink publishes one message per record, keyed by the log ID so that
// re-delivered events land on the same partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	sent     int
}

// NewKafkaSink connects a synchronous producer to brokers
func NewKafkaSink(brokers []string, topic string, alg compression.Algorithm, logger *zap.Logger) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(brokers, buildSaramaConfig(alg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka producer")
	}
	return newKafkaSink(producer, topic, logger), nil
}

func newKafkaSink(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("sink", "kafka"), zap.String("topic", topic)),
	}
}

func buildSaramaConfig(alg compression.Algorithm) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "logevents"
	config.Version = sarama.V2_1_0_0

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 10 * time.Second

	switch alg {
	case compression.Gzip:
		config.Producer.Compression = sarama.CompressionGZIP
	case compression.Snappy:
		config.Producer.Compression = sarama.CompressionSnappy
	case compression.LZ4:
		config.Producer.Compression = sarama.CompressionLZ4
	case compression.Zstd:
		config.Producer.Compression = sarama.CompressionZSTD
	default:
		config.Producer.Compression = sarama.CompressionNone
	}
	return config
}

// Write implements Sink. Records are sent as one batch; a failed batch may
// have been partially delivered.
func (s *KafkaSink) Write(ctx context.Context, table string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(records))
	for _, record := range records {
		msg := &sarama.ProducerMessage{
			Topic: s.topic,
			Value: sarama.ByteEncoder(record),
			Headers: []sarama.RecordHeader{
				{Key: []byte("table"), Value: []byte(table)},
			},
		}
		if key, ok := recordKey(record); ok {
			msg.Key = sarama.StringEncoder(key)
		}
		messages = append(messages, msg)
	}

	if err := s.producer.SendMessages(messages); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to publish records").
			WithDetail("table", table)
	}

	s.sent += len(messages)
	s.logger.Debug("records published",
		zap.String("table", table),
		zap.Int("records", len(messages)))
	return nil
}

// Close implements Sink
func (s *KafkaSink) Close(context.Context) error {
	if err := s.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to close Kafka producer")
	}
	s.logger.Info("records published", zap.Int("records", s.sent))
	return nil
}

func recordKey(record models.Record) (string, bool) {
	for _, field := range keyFields {
		if key, ok := record.Key(field); ok {
			return key, true
		}
	}
	return "", false
}
