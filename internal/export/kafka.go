package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
)

// MalformedTopicSuffix names the malformed topic when none is configured
const MalformedTopicSuffix = "-malformed"

// KafkaSink produces one message per record, keyed by client IP so all of
// an address's requests land on one partition. Malformed entries go to a
// separate topic keyed by line number.
type KafkaSink struct {
	producer       sarama.SyncProducer
	topic          string
	malformedTopic string
}

// NewKafkaSink connects a sync producer to the configured brokers
func NewKafkaSink(cfg config.ExportConfig) (*KafkaSink, error) {
	kc := cfg.Kafka
	if kc == nil || len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}

	saramaConfig, err := newSaramaConfig(kc)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(kc.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaSinkWithProducer(producer, kc.Topic, kc.MalformedTopic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer
func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic, malformedTopic string) *KafkaSink {
	if malformedTopic == "" {
		malformedTopic = topic + MalformedTopicSuffix
	}
	return &KafkaSink{
		producer:       producer,
		topic:          topic,
		malformedTopic: malformedTopic,
	}
}

func newSaramaConfig(kc *config.KafkaExportConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	acks := kc.RequiredAcks
	if acks == 0 {
		acks = int16(sarama.WaitForLocal)
	}
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(acks)

	saramaConfig.ClientID = kc.ClientID
	if saramaConfig.ClientID == "" {
		saramaConfig.ClientID = "logscope"
	}

	switch kc.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if kc.Version != "" {
		version, err := sarama.ParseKafkaVersion(kc.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid Kafka version: %w", err)
		}
		saramaConfig.Version = version
	}

	return saramaConfig, nil
}

// Topics returns the record and malformed topics
func (k *KafkaSink) Topics() (string, string) {
	return k.topic, k.malformedTopic
}

// Write sends every record and malformed entry in one SendMessages call
func (k *KafkaSink) Write(ctx context.Context, p *Payload) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(p.Records)+len(p.Malformed))
	var total int64

	for _, r := range p.Records {
		value, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal record: %w", err)
		}
		total += int64(len(value))
		msgs = append(msgs, k.message(k.topic, r.IP, value, KindRecord, p))
	}

	for _, m := range p.Malformed {
		value, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal malformed entry: %w", err)
		}
		total += int64(len(value))
		msgs = append(msgs, k.message(k.malformedTopic, strconv.Itoa(m.LineNumber), value, KindMalformed, p))
	}

	if len(msgs) == 0 {
		return 0, nil
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return 0, fmt.Errorf("failed to send %d of %d messages to Kafka: %w", len(perrs), len(msgs), err)
		}
		return 0, fmt.Errorf("failed to send messages to Kafka: %w", err)
	}

	return total, nil
}

func (k *KafkaSink) message(topic, key string, value []byte, kind string, p *Payload) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(p.RunID)},
			{Key: []byte("source"), Value: []byte(p.Source)},
			{Key: []byte("kind"), Value: []byte(kind)},
		},
	}
}

// Name returns "kafka"
func (k *KafkaSink) Name() string { return SinkKafka }

// Close closes the producer
func (k *KafkaSink) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
