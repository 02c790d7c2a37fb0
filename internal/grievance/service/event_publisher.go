package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"safevoice/internal/common/mq"
	"safevoice/internal/grievance/model"
)

// EventPublisher publishes lifecycle events after their transaction commits.
type EventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewEventPublisher creates a publisher writing to topic.
func NewEventPublisher(producer mq.Producer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

// Publish sends one event keyed by issue id, so events of an issue stay ordered.
func (p *EventPublisher) Publish(ctx context.Context, event model.LifecycleEvent) error {
	if p == nil || p.producer == nil {
		return errors.New("event publisher is nil")
	}
	if p.topic == "" {
		return errors.New("event topic is empty")
	}
	if event.IssueID <= 0 {
		return errors.New("issueID is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = strconv.FormatInt(event.IssueID, 10)
	message.SetHeader("event_type", event.EventType)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish lifecycle event failed: %w", err)
	}
	return nil
}
