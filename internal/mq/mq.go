package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ContentTypeAttr is the attribute carrying the payload's media type.
const ContentTypeAttr = "content_type"

// OrderingKeyAttr groups messages that must be delivered in publish order.
// Backends without ordering support carry it as a plain attribute.
const OrderingKeyAttr = "ordering_key"

// ErrPermanent marks a handler failure that redelivery cannot fix. Backends
// drop such messages instead of requeueing them.
var ErrPermanent = errors.New("permanent message failure")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes v as JSON and sends it to the named channel.
func (m *MQ) PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	merged := make(map[string]string, len(attrs)+1)
	for key, value := range attrs {
		merged[key] = value
	}
	merged[ContentTypeAttr] = "application/json"
	return m.backend.Publish(ctx, channel, data, merged)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// DecodeJSON unmarshals the message payload into v. Malformed payloads are
// reported as ErrPermanent.
func (msg Message) DecodeJSON(v any) error {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: decode message %s: %v", ErrPermanent, msg.ID, err)
	}
	return nil
}
