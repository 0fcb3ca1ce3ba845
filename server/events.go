package server

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/Shopify/sarama"
	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/twinj/uuid"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * pixel.Kilo

var badTopicChars = regexp.MustCompile(`[^a-zA-Z0-9\._\-]+`)

// Activity is one published server event.
type Activity struct {
	RequestID string
	Time      time.Time
	User      string `json:",omitempty"`
	Method    string
	PixelsID  pixel.PixelsID `json:",omitempty"`
	FileID    pixel.FileID   `json:",omitempty"`
	NewID     pixel.PixelsID `json:",omitempty"`
	Bytes     int64          `json:",omitempty"`
	Duration  time.Duration
}

// Events publishes activity to a Kafka topic.  A nil *Events drops activity.
type Events struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
}

// NewEvents connects to the configured Kafka servers.  It returns nil if no
// servers are configured.
func NewEvents(kc config.KafkaConfig) (*Events, error) {
	if len(kc.Servers) == 0 {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.Producer.MaxMessageBytes = KafkaMaxMessageSize
	producer, err := sarama.NewAsyncProducer(kc.Servers, cfg)
	if err != nil {
		return nil, err
	}
	return newEvents(producer, kc.Topic), nil
}

func newEvents(producer sarama.AsyncProducer, topic string) *Events {
	e := &Events{
		producer: producer,
		topic:    badTopicChars.ReplaceAllString(topic, "-"),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		for err := range producer.Errors() {
			pixel.Errorf("error on kafka send: %v\n", err)
		}
	}()
	pixel.Infof("Kafka topic for pixel activity: %s\n", e.topic)
	return e
}

// Publish queues an activity record.
func (e *Events) Publish(a Activity) {
	if e == nil {
		return
	}
	if a.RequestID == "" {
		a.RequestID = fmt.Sprintf("%x", uuid.NewV4().Bytes())
	}
	value, err := json.Marshal(a)
	if err != nil {
		pixel.Errorf("unable to marshal activity for kafka logging: %v\n", err)
		return
	}
	e.producer.Input() <- &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(a.RequestID),
		Value: sarama.ByteEncoder(value),
	}
}

// Close makes sure that the kafka queue is flushed before stopping.
func (e *Events) Close() error {
	if e == nil {
		return nil
	}
	err := e.producer.Close()
	<-e.done
	if err != nil {
		pixel.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	pixel.Infof("Successfully shut down kafka producer.\n")
	return nil
}
