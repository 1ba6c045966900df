package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ridehail/internal/models"
)

// KafkaProducer publishes accepted location samples keyed by ride id so
// downstream consumers see per-ride order.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

type sampleEvent struct {
	RideID string                `json:"rideId"`
	Sample models.LocationSample `json:"sample"`
}

func (k *KafkaProducer) PublishSample(rideID string, s models.LocationSample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(sampleEvent{RideID: rideID, Sample: s})
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rideID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
