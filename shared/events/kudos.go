// Package events publishes domain events to Kafka through a small async
// worker pool so handlers never block on the broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KudosEvent is emitted after a kudos transfer is recorded
type KudosEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	RecipientID   uuid.UUID `json:"recipient_id"`
	Amount        int       `json:"amount"`
	SentAt        time.Time `json:"sent_at"`
}

// Producer fans kudos events out to Kafka through buffered workers
type Producer struct {
	writer       *kafka.Writer
	eventChan    chan KudosEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewProducer creates a producer connected to the given broker and starts
// its worker pool.
func NewProducer(broker string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	p := &Producer{
		writer:       writer,
		eventChan:    make(chan KudosEvent, 1000),
		workerCount:  4,
		shutdownChan: make(chan struct{}),
	}
	p.startWorkers()
	return p
}

func (p *Producer) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logrus.WithField("workers", p.workerCount).Info("Kudos event workers started")
}

func (p *Producer) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.eventChan:
			if err := p.sendSync(event); err != nil {
				logrus.WithError(err).WithField("worker", id).Error("Failed to publish kudos event")
			}
		case <-p.shutdownChan:
			return
		}
	}
}

// Publish queues an event without blocking. A full queue drops the event;
// the transfer itself is already durable so delivery is best effort.
func (p *Producer) Publish(event KudosEvent) error {
	select {
	case p.eventChan <- event:
		return nil
	default:
		return fmt.Errorf("kudos event queue full, event dropped")
	}
}

func (p *Producer) sendSync(event KudosEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal kudos event: %w", err)
	}

	msg := kafka.Message{
		Topic: "kudos-transfers",
		Key:   []byte(event.SenderID.String()),
		Value: message,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("kudos_transfer")},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kudos event: %w", err)
	}
	return nil
}

// Close drains the workers and closes the underlying writer
func (p *Producer) Close() error {
	close(p.shutdownChan)
	p.wg.Wait()
	close(p.eventChan)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	logrus.Info("Kudos event producer closed")
	return nil
}
