package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the subset of *kafka.Writer the notifier uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes sync summaries through a worker pool
type KafkaNotifier struct {
	writer       messageWriter
	events       chan SyncSummary
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	log          logrus.FieldLogger
}

// NewKafkaNotifier creates a notifier writing to broker
func NewKafkaNotifier(broker string, log logrus.FieldLogger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newKafkaNotifier(writer, 4, 256, log)
}

func newKafkaNotifier(w messageWriter, workers, queue int, log logrus.FieldLogger) *KafkaNotifier {
	kn := &KafkaNotifier{
		writer:       w,
		events:       make(chan SyncSummary, queue),
		workerCount:  workers,
		shutdownChan: make(chan struct{}),
		log:          log.WithField("component", "kafka_notifier"),
	}
	for i := 0; i < kn.workerCount; i++ {
		kn.wg.Add(1)
		go kn.worker(i)
	}
	kn.log.Infof("started %d notifier workers", kn.workerCount)
	return kn
}

func (kn *KafkaNotifier) worker(id int) {
	defer kn.wg.Done()

	for {
		select {
		case event := <-kn.events:
			kn.publish(id, event)
		case <-kn.shutdownChan:
			// drain what was queued before shutdown
			for {
				select {
				case event := <-kn.events:
					kn.publish(id, event)
				default:
					return
				}
			}
		}
	}
}

func (kn *KafkaNotifier) publish(worker int, event SyncSummary) {
	if err := kn.send(event); err != nil {
		kn.log.WithFields(logrus.Fields{
			"worker":         worker,
			"integration_id": event.IntegrationID,
			"log_id":         event.LogID,
		}).WithError(err).Error("failed to publish sync summary")
	}
}

// SyncCompleted queues a summary without blocking the sync run
func (kn *KafkaNotifier) SyncCompleted(_ context.Context, summary SyncSummary) error {
	select {
	case kn.events <- summary:
		return nil
	default:
		return fmt.Errorf("notification queue full, summary for log %s dropped", summary.LogID)
	}
}

func (kn *KafkaNotifier) send(event SyncSummary) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync summary: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "tenant_id", Value: []byte(event.TenantID.String())},
			{Key: "integration_id", Value: []byte(event.IntegrationID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kn.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write sync summary to Kafka: %w", err)
	}
	return nil
}

// Close stops the workers after flushing queued summaries and closes the writer
func (kn *KafkaNotifier) Close() error {
	close(kn.shutdownChan)
	kn.wg.Wait()

	if err := kn.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	kn.log.Info("notifier shut down")
	return nil
}

// LogNotifier only logs summaries; used when no broker is configured
type LogNotifier struct {
	Log logrus.FieldLogger
}

// SyncCompleted logs the summary
func (n LogNotifier) SyncCompleted(_ context.Context, s SyncSummary) error {
	entry := n.Log.WithFields(logrus.Fields{
		"integration_id": s.IntegrationID,
		"log_id":         s.LogID,
		"status":         s.Status,
		"created":        s.Created,
		"updated":        s.Updated,
		"failed":         s.Failed,
		"conflicts":      len(s.Conflicts),
	})
	if s.HardFailure {
		entry.Warn("channel sync failed")
		return nil
	}
	entry.Info("channel sync completed")
	return nil
}
