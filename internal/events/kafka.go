package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes JSON events to Kafka topics named after the
// bus subjects. Position events are keyed by driver ID so that updates for
// one driver stay on one partition and keep their order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafka.Message{Topic: topic, Value: data}
	if ev, ok := event.(model.RawPositionEvent); ok {
		msg.Key = []byte(ev.DriverID)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka topic %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber reads bus subjects from Kafka topics of the same name.
// Each subscription tails its topic from the newest offset; position
// history is never replayed.
type KafkaSubscriber struct {
	brokers []string
	onState StateHandler

	mu      sync.Mutex
	readers []*kafka.Reader

	// failing holds the topics whose reader is currently erroring. The
	// subscriber is disconnected while it is non-empty.
	stateMu sync.Mutex
	failing map[string]struct{}
}

// NewKafkaSubscriber creates a subscriber. onState may be nil.
func NewKafkaSubscriber(brokers []string, onState StateHandler) (*KafkaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return &KafkaSubscriber{
		brokers: brokers,
		onState: onState,
		failing: make(map[string]struct{}),
	}, nil
}

// readerFailed records a read error on topic. Only the first failing
// reader reports StateDisconnected, so one broker outage seen by every
// topic reader is announced once.
func (s *KafkaSubscriber) readerFailed(topic string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if _, ok := s.failing[topic]; ok {
		return
	}
	s.failing[topic] = struct{}{}
	if len(s.failing) == 1 && s.onState != nil {
		s.onState(StateDisconnected)
	}
}

// readerRecovered clears topic's failure. StateReconnected is reported
// once the last failing reader recovers.
func (s *KafkaSubscriber) readerRecovered(topic string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if _, ok := s.failing[topic]; !ok {
		return
	}
	delete(s.failing, topic)
	if len(s.failing) == 0 && s.onState != nil {
		s.onState(StateReconnected)
	}
}

// readerStopped forgets topic without reporting a transition.
func (s *KafkaSubscriber) readerStopped(topic string) {
	s.stateMu.Lock()
	delete(s.failing, topic)
	s.stateMu.Unlock()
}

// Subscribe starts tailing topic. Kafka has no wildcard subjects, so topic
// must be a concrete name.
func (s *KafkaSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.brokers,
		Topic:          topic,
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})
	s.mu.Lock()
	s.readers = append(s.readers, reader)
	s.mu.Unlock()

	ch := make(chan Message, 256)
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(ch)
		defer s.readerStopped(topic)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.readerFailed(topic)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			s.readerRecovered(topic)
			select {
			case ch <- Message{Topic: msg.Topic, Data: msg.Value}:
			default:
				// Drop message if channel is full rather than stall the reader.
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			<-done
			_ = reader.Close()
		})
	}
	return ch, cancel, nil
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	return errors.Join(errs...)
}
