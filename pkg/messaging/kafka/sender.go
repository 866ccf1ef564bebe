// Package kafka publishes execution results to a Kafka topic.
package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/DrAshBooth/golob/pkg/messaging"
)

const maxRetry = 5

// Sender implements messaging.MessageSender on a sarama sync producer.
type Sender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSender connects a sync producer to the given brokers.
func NewSender(brokers []string, topic string) (*Sender, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &Sender{producer: producer, topic: topic}, nil
}

// SendDoneMessage publishes one execution result, keyed by order id so all
// messages for an order land in one partition.
func (s *Sender) SendDoneMessage(done *messaging.DoneMessage) error {
	payload, err := json.Marshal(done)
	if err != nil {
		return fmt.Errorf("failed to marshal done message: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(done.OrderID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close shuts down the producer
func (s *Sender) Close() error {
	return s.producer.Close()
}
