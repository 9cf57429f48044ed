package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/recipebox/apiserver/config"
)

// defaultRequeueDelay holds back a failed delivery before it is requeued so
// a failing handler does not spin on the same message.
const defaultRequeueDelay = time.Second

// RabbitMQClient publishes through the default exchange straight to a queue
// named after the channel. Publishing uses its own channel in confirm mode;
// consumers share a second channel.
type RabbitMQClient struct {
	conn    *amqp.Connection
	publish *amqp.Channel
	consume *amqp.Channel

	durable      bool
	autoDelete   bool
	requeueDelay time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQClient dials the broker from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	client := &RabbitMQClient{
		conn:         conn,
		durable:      cfg.QueueDurable,
		autoDelete:   cfg.QueueAutoDelete,
		requeueDelay: defaultRequeueDelay,
		logger:       slog.Default(),
		declared:     make(map[string]bool),
	}
	if err := client.openChannels(cfg.PrefetchCount); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

func (r *RabbitMQClient) openChannels(prefetch int) error {
	var err error
	if r.publish, err = r.conn.Channel(); err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}
	if err := r.publish.Confirm(false); err != nil {
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	if r.consume, err = r.conn.Channel(); err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if prefetch > 0 {
		if err := r.consume.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}
	return nil
}

// Publish sends data to the channel's queue and waits for the broker to
// confirm it.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := r.declare(channel); err != nil {
		return "", err
	}

	msg := amqp.Publishing{
		ContentType:  attrs[ContentTypeAttr],
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Headers:      make(amqp.Table, len(attrs)),
		Body:         data,
	}
	if msg.ContentType == "" {
		msg.ContentType = "application/octet-stream"
	}
	if r.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	for key, value := range attrs {
		msg.Headers[key] = value
	}

	confirm, err := r.publish.PublishWithDeferredConfirmWithContext(ctx, "", channel, false, false, msg)
	if err != nil {
		return "", err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !acked {
		return "", fmt.Errorf("rabbitmq nacked message %s", msg.MessageId)
	}
	return msg.MessageId, nil
}

// Subscribe consumes the channel's queue until ctx is done. Handler errors
// requeue the delivery unless they are ErrPermanent.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := r.declare(channel); err != nil {
		return err
	}

	tag := "consumer-" + uuid.NewString()
	deliveries, err := r.consume.Consume(channel, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.consume.Cancel(tag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			err := handler(ctx, Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			})
			if err := r.settle(ctx, channel, delivery, err); err != nil {
				return err
			}
		}
	}
}

// settle acks or nacks delivery according to the handler's result. Failed
// deliveries are requeued after requeueDelay unless the failure is
// ErrPermanent. It returns ctx.Err() if ctx ends during the delay.
func (r *RabbitMQClient) settle(ctx context.Context, channel string, delivery amqp.Delivery, handlerErr error) error {
	switch {
	case handlerErr == nil:
		_ = delivery.Ack(false)
		return nil
	case errors.Is(handlerErr, ErrPermanent):
		r.logger.WarnContext(ctx, "dropping message", "queue", channel, "message_id", delivery.MessageId, "error", handlerErr)
		_ = delivery.Nack(false, false)
		return nil
	}

	r.logger.WarnContext(ctx, "requeueing message",
		"queue", channel,
		"message_id", delivery.MessageId,
		"delay", r.requeueDelay,
		"error", handlerErr,
	)
	timer := time.NewTimer(r.requeueDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = delivery.Nack(false, true)
		return ctx.Err()
	case <-timer.C:
		_ = delivery.Nack(false, true)
		return nil
	}
}

// Close closes both channels and the connection.
func (r *RabbitMQClient) Close() error {
	for _, ch := range []*amqp.Channel{r.publish, r.consume} {
		if ch != nil {
			_ = ch.Close()
		}
	}
	return r.conn.Close()
}

func (r *RabbitMQClient) declare(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[name] {
		return nil
	}
	if _, err := r.publish.QueueDeclare(name, r.durable, r.autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch v := value.(type) {
		case string:
			attrs[key] = v
		case []byte:
			attrs[key] = string(v)
		default:
			attrs[key] = fmt.Sprint(v)
		}
	}
	return attrs
}
