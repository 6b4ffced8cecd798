package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	return &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-test"),
	}, mockProducer
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageAndSucceed()

	publisher := NewOutboxPublisher(producer, TopicOrderEvents, TopicPaymentEvents)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "OrderPlaced",
		Payload:       []byte(`{"order_id":"order-123"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

// Платёжные события маршрутизируются в payment topic.
func TestOutboxPublisher_RoutesPaymentEvents(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentEvents {
			t.Fatalf("expected topic %s, got %s", TopicPaymentEvents, msg.Topic)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		if envelope.EventType != "PaymentApplied" {
			t.Fatalf("expected PaymentApplied, got %s", envelope.EventType)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, TopicOrderEvents, TopicPaymentEvents)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "PaymentApplied",
		Payload:       []byte(`{"order_id":"order-123"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer, TopicOrderEvents, TopicPaymentEvents)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-3",
		AggregateType: "order",
		AggregateID:   "order-234",
		EventType:     "OrderCancelled",
		Payload:       []byte(`{"order_id":"order-234"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents, TopicPaymentEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
