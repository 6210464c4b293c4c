package services

import (
	"encoding/json"
	"time"

	"ecofinds/internal/logger"
)

// Product lifecycle event types. They double as AMQP routing keys.
const (
	EventProductCreated        = "product.created"
	EventProductUpdated        = "product.updated"
	EventProductDeleted        = "product.deleted"
	EventProductImageDeleted   = "product.image_deleted"
	EventProductPrimaryChanged = "product.primary_changed"
)

// ProductEvent is published after a product mutation has committed.
type ProductEvent struct {
	Type           string    `json:"type"`
	ProductID      uint      `json:"product_id"`
	ImageID        uint      `json:"image_id,omitempty"`
	PrimaryImageID uint      `json:"primary_image_id,omitempty"`
	ImageCount     int       `json:"image_count"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher delivers a message body under a routing key.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// NopPublisher drops every message. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, []byte) error { return nil }

// publishEvent never fails the caller: the mutation has already committed.
func publishEvent(publisher EventPublisher, log *logger.Logger, event ProductEvent) {
	event.OccurredAt = time.Now().UTC()
	body, err := json.Marshal(event)
	if err != nil {
		log.Warn("failed to marshal product event", "type", event.Type, "product_id", event.ProductID, "error", err)
		return
	}
	if err := publisher.Publish(event.Type, body); err != nil {
		log.Warn("failed to publish product event", "type", event.Type, "product_id", event.ProductID, "error", err)
		return
	}
	log.Debug("published product event", "type", event.Type, "product_id", event.ProductID)
}
