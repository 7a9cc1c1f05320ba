package notify

import (
	"context"
	"encoding/json"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes events to a Kafka topic, keyed by channel id so all
// events for one channel land on the same partition in order.
type KafkaNotifier struct {
	w *kafka.Writer
}

// NewKafkaNotifier creates an async writer against the given brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireNone,
		Async:        true,
	}
	return &KafkaNotifier{w: w}
}

// MessageAppended publishes the event as JSON.
func (n *KafkaNotifier) MessageAppended(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ChannelID),
		Value: data,
		Time:  time.Now(),
	})
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error { return n.w.Close() }
