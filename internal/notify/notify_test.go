package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/notify"
	"github.com/carbnb/availability/internal/service"
)

var (
	_ service.Notifier   = (*notify.Publisher)(nil)
	_ service.ChatPoster = (*notify.Publisher)(nil)
	_ service.Notifier   = (*notify.LogSink)(nil)
	_ service.ChatPoster = (*notify.LogSink)(nil)
)

func sampleNotification() domain.Notification {
	return domain.Notification{
		UserID:  "owner-o",
		Title:   "Payment received",
		Message: "You received $113.20 for Toyota Corolla.",
		Kind:    domain.KindPayment,
		Data:    domain.NotificationData{BookingID: "booking_1", PaymentID: "pay_1", Amount: 113.2},
	}
}

func TestLogSink_Notify(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Notify(context.Background(), sampleNotification()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notification", entry["msg"])
	assert.Equal(t, "owner-o", entry["user_id"])
	assert.Equal(t, "payment", entry["type"])
	assert.Equal(t, "booking_1", entry["booking_id"])
}

func TestLogSink_PostSystemMessage(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.PostSystemMessage(context.Background(), "conv-1", "Booking confirmed"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conv-1", entry["conversation_id"])
	assert.Equal(t, "Booking confirmed", entry["text"])
}

// TestPublisher_RoundTrip publishes to a real broker. Set TEST_AMQP_URL to run.
func TestPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set; skipping integration test")
	}
	p, err := notify.Dial(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)
	_, err = ch.QueuePurge(notify.NotificationsQueue, false)
	require.NoError(t, err)
	_, err = ch.QueuePurge(notify.ChatQueue, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Notify(ctx, sampleNotification()))
	require.NoError(t, p.PostSystemMessage(ctx, "conv-1", "Booking confirmed"))

	var got domain.Notification
	require.NoError(t, json.Unmarshal(get(t, ch, notify.NotificationsQueue).Body, &got))
	assert.Equal(t, sampleNotification(), got)

	var msg notify.ChatMessage
	d := get(t, ch, notify.ChatQueue)
	require.NoError(t, json.Unmarshal(d.Body, &msg))
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Equal(t, "application/json", d.ContentType)
	assert.Equal(t, amqp.Persistent, d.DeliveryMode)
}

// get polls queue until a message arrives or a second passes.
func get(t *testing.T, ch *amqp.Channel, queue string) amqp.Delivery {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		d, ok, err := ch.Get(queue, true)
		require.NoError(t, err)
		if ok {
			return d
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no message on %s", queue)
	return amqp.Delivery{}
}
