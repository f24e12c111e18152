package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/notify"
)

type queuedReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *queuedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *queuedReader) Close() error {
	r.closed = true
	return nil
}

type webhookRecorder struct {
	mu      sync.Mutex
	events  []string
	tenants []string
}

func (w *webhookRecorder) handler(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body struct {
			EventType string             `json:"event_type"`
			Data      notify.SyncSummary `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.mu.Lock()
		w.events = append(w.events, body.EventType)
		w.tenants = append(w.tenants, r.Header.Get("X-Tenant-ID"))
		w.mu.Unlock()
		rw.WriteHeader(status)
	}
}

func (w *webhookRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func summaryMessage(t *testing.T, s notify.SyncSummary) kafka.Message {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(s.TenantID.String()), Value: b}
}

func TestConsumerForwardsSummaries(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	tenant := uuid.New()
	reader := &queuedReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- summaryMessage(t, notify.SyncSummary{EventID: uuid.New(), TenantID: tenant, Status: string(models.SyncStatusSuccess)})
	reader.msgs <- kafka.Message{Value: []byte("not json")}
	reader.msgs <- summaryMessage(t, notify.SyncSummary{EventID: uuid.New(), TenantID: tenant, Status: string(models.SyncStatusFailed), HardFailure: true})

	client := NewWebhookClient(srv.URL)
	consumer := &KafkaConsumer{reader: reader, log: quietLog()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.ConsumeSummaries(ctx, client)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if rec.count() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", rec.count())
	}
	if rec.events[0] != "sync_completed" || rec.events[1] != "sync_failed" {
		t.Fatalf("unexpected event types %v", rec.events)
	}
	if rec.tenants[0] != tenant.String() {
		t.Fatalf("tenant header missing: %v", rec.tenants)
	}
	if st := client.GetStatus(); st["delivered"] != int64(2) || st["connected"] != true {
		t.Fatalf("unexpected status %v", st)
	}

	if err := consumer.Close(); err != nil || !reader.closed {
		t.Fatal("close should close the reader")
	}
}

func TestWebhookFailureIsRecorded(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusServiceUnavailable))
	defer srv.Close()

	client := NewWebhookClient(srv.URL)
	if err := client.SendSummary(context.Background(), notify.SyncSummary{TenantID: uuid.New()}); err == nil {
		t.Fatal("non-2xx must be an error")
	}
	st := client.GetStatus()
	if st["failed"] != int64(1) || st["connected"] != false || st["last_error"] == nil {
		t.Fatalf("unexpected status %v", st)
	}
}

func TestStatusEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/notifications/status", handleGetNotificationStatus(NewWebhookClient("")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected %d", w.Code)
	}
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data["enabled"] != false {
		t.Fatalf("empty endpoint should report disabled: %v", body.Data)
	}
}
