// Package events carries recipe lifecycle notifications between the API
// and background workers.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/recipebox/apiserver/internal/mq"
)

// Kind names a recipe lifecycle transition.
type Kind string

const (
	RecipeCreated Kind = "recipe.created"
	RecipeUpdated Kind = "recipe.updated"
	RecipeDeleted Kind = "recipe.deleted"
)

const kindAttr = "kind"

// RecipeEvent describes a committed change to a recipe.
type RecipeEvent struct {
	Kind     Kind   `json:"kind"`
	RecipeID string `json:"recipe_id"`
	AuthorID string `json:"author_id"`
	// Image is the recipe's image after the change.
	Image string `json:"image,omitempty"`
	// PreviousImage is the image the recipe had before an update.
	PreviousImage string    `json:"previous_image,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher sends recipe events over a message queue channel.
type Publisher struct {
	queue   *mq.MQ
	channel string
}

func NewPublisher(queue *mq.MQ, channel string) *Publisher {
	return &Publisher{queue: queue, channel: channel}
}

// Publish sends ev to the publisher's channel.
func (p *Publisher) Publish(ctx context.Context, ev RecipeEvent) error {
	attrs := map[string]string{
		kindAttr:           string(ev.Kind),
		mq.OrderingKeyAttr: ev.RecipeID,
	}
	if _, err := p.queue.PublishJSON(ctx, p.channel, ev, attrs); err != nil {
		return fmt.Errorf("publish %s for recipe %s: %w", ev.Kind, ev.RecipeID, err)
	}
	return nil
}

// Decode extracts a RecipeEvent from a queue message.
func Decode(msg mq.Message) (RecipeEvent, error) {
	var ev RecipeEvent
	if err := msg.DecodeJSON(&ev); err != nil {
		return RecipeEvent{}, err
	}
	if ev.Kind == "" || ev.RecipeID == "" {
		return RecipeEvent{}, fmt.Errorf("%w: message %s is not a recipe event", mq.ErrPermanent, msg.ID)
	}
	return ev, nil
}

// Dispatcher delivers events to a janitor in-process. It is used when no
// message queue is configured.
type Dispatcher struct {
	janitor *Janitor
}

func NewDispatcher(janitor *Janitor) *Dispatcher {
	return &Dispatcher{janitor: janitor}
}

func (d *Dispatcher) Publish(ctx context.Context, ev RecipeEvent) error {
	return d.janitor.HandleEvent(ctx, ev)
}
