package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/notify"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type summarySink interface {
	SendSummary(ctx context.Context, summary notify.SyncSummary) error
}

// KafkaConsumer reads sync summaries from the channel-sync topic
type KafkaConsumer struct {
	reader messageReader
	log    logrus.FieldLogger
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(broker string, log logrus.FieldLogger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          notify.Topic,
		GroupID:        "notifications-service",
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: reader, log: log}
}

// ConsumeSummaries forwards every summary to sink until ctx is cancelled
func (kc *KafkaConsumer) ConsumeSummaries(ctx context.Context, sink summarySink) {
	kc.log.Info("Starting sync summary consumer...")

	for {
		msg, err := kc.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				kc.log.Info("sync summary consumer stopped")
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			kc.log.WithError(err).Error("Error reading sync summary")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var summary notify.SyncSummary
		if err := json.Unmarshal(msg.Value, &summary); err != nil {
			kc.log.WithError(err).WithField("offset", msg.Offset).Warn("Error unmarshaling sync summary")
			continue
		}

		entry := kc.log.WithFields(logrus.Fields{
			"tenant_id":      summary.TenantID,
			"integration_id": summary.IntegrationID,
			"event_type":     summary.EventType(),
		})
		if err := sink.SendSummary(ctx, summary); err != nil {
			entry.WithError(err).Error("Error forwarding sync summary")
			continue
		}
		entry.Info("Forwarded sync summary")
	}
}

// Close closes the Kafka consumer
func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close summary reader: %w", err)
	}
	return nil
}
