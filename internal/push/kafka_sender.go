package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSender publishes messages to a topic for an external push gateway to
// deliver. Records are keyed by transaction id.
type KafkaSender struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSender connects to brokers. The caller owns Close.
func NewKafkaSender(brokers []string, topic string, opts ...kgo.Opt) (*KafkaSender, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSender{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (s *KafkaSender) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Ping checks broker connectivity.
func (s *KafkaSender) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Send produces msg synchronously and returns "topic/partition/offset".
func (s *KafkaSender) Send(ctx context.Context, msg Message) (string, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode push message: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(msg.TransactionID.String()),
		Value: value,
	}
	produced, err := s.client.ProduceSync(ctx, record).First()
	if err != nil {
		return "", fmt.Errorf("produce push message: %w", err)
	}
	return fmt.Sprintf("%s/%d/%d", produced.Topic, produced.Partition, produced.Offset), nil
}

func (s *KafkaSender) Close() {
	s.client.Close()
}
