package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"literature-manager/internal/model"
)

// EventPublisher sends paper lifecycle events to a durable queue, where the
// persist worker picks them up.
type EventPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewEventPublisher(conn *amqp.Connection, queueName string) *EventPublisher {
	return &EventPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event model.PaperEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareEventQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         "paper." + event.Action,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.CreatedAt,
		},
	); err != nil {
		return fmt.Errorf("publish paper event failed: %w", err)
	}
	return nil
}

func EncodeEvent(event model.PaperEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal paper event failed: %w", err)
	}
	return payload, nil
}

func DecodeEvent(body []byte) (model.PaperEvent, error) {
	var event model.PaperEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return model.PaperEvent{}, fmt.Errorf("unmarshal paper event failed: %w", err)
	}
	if event.PaperID == 0 || event.Action == "" {
		return model.PaperEvent{}, fmt.Errorf("paper event missing paper id or action")
	}
	return event, nil
}
