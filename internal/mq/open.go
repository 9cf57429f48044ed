package mq

import (
	"context"
	"fmt"

	"github.com/recipebox/apiserver/config"
)

// Open connects to the configured broker.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.MQRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("message queue backend %q cannot be opened", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.Backend, err)
	}
	return New(backend), nil
}
