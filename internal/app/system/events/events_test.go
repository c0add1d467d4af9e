package events_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogPublisher_Publish(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := events.NewLogPublisher(zap.New(core))

	err := p.Publish(context.Background(), scheduling.EventPendingHandoff, scheduling.Event{
		Type:        scheduling.EventPendingHandoff,
		ContainerID: "c-1",
		Date:        "2025-03-10",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := logs.FilterMessage("event published").All()
	if len(got) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(got))
	}
	fields := got[0].ContextMap()
	if fields["routing_key"] != scheduling.EventPendingHandoff {
		t.Errorf("routing_key = %v", fields["routing_key"])
	}
	payload, _ := fields["payload"].(string)
	if !strings.Contains(payload, `"container_id":"c-1"`) {
		t.Errorf("payload = %s, want container_id", payload)
	}
}

func TestLogPublisher_EncodeError(t *testing.T) {
	p := events.NewLogPublisher(nil)
	if err := p.Publish(context.Background(), "bad", make(chan int)); err == nil {
		t.Fatal("expected encode error for a channel payload")
	}
}

// TestAMQPPublisher_RoundTrip needs a broker; set DIKSHAHUB_TEST_AMQP_URL.
func TestAMQPPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("DIKSHAHUB_TEST_AMQP_URL")
	if url == "" {
		t.Skip("DIKSHAHUB_TEST_AMQP_URL not set")
	}
	exchange := "dikshahub.test." + time.Now().Format("150405.000000")

	pub, err := events.NewAMQPPublisher(url, exchange)
	if err != nil {
		t.Fatalf("NewAMQPPublisher: %v", err)
	}
	defer pub.Close()

	conn, err := amqp.Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	defer ch.Close()
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := ch.QueueBind(q.Name, "assignment.*", exchange, false, nil); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	if err := pub.Publish(ctx, scheduling.EventMoved, scheduling.Event{Type: scheduling.EventMoved, Date: "2025-03-11"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-deliveries:
		if d.RoutingKey != scheduling.EventMoved || d.ContentType != "application/json" {
			t.Errorf("delivery key=%q content-type=%q", d.RoutingKey, d.ContentType)
		}
		var got scheduling.Event
		if err := json.Unmarshal(d.Body, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Date != "2025-03-11" {
			t.Errorf("date = %q", got.Date)
		}
	case <-ctx.Done():
		t.Fatal("no delivery before timeout")
	}
}
