package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/recipebox/apiserver/internal/mq"
	"github.com/recipebox/apiserver/internal/storage"
)

// ImageRemover deletes stored images by name.
type ImageRemover interface {
	Delete(ctx context.Context, key string) error
}

// Janitor removes images that no recipe references any more.
type Janitor struct {
	images ImageRemover
	logger *slog.Logger
}

func NewJanitor(images ImageRemover, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{images: images, logger: logger.With("component", "image-janitor")}
}

// Run consumes recipe events from channel until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, queue *mq.MQ, channel string) error {
	j.logger.InfoContext(ctx, "consuming recipe events", "channel", channel)
	err := queue.Subscribe(ctx, channel, j.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one queue message.
func (j *Janitor) Handle(ctx context.Context, msg mq.Message) error {
	ev, err := Decode(msg)
	if err != nil {
		j.logger.WarnContext(ctx, "dropping malformed event", "message_id", msg.ID, "error", err)
		return err
	}
	return j.HandleEvent(ctx, ev)
}

// HandleEvent deletes the images orphaned by ev.
func (j *Janitor) HandleEvent(ctx context.Context, ev RecipeEvent) error {
	switch ev.Kind {
	case RecipeDeleted:
		return j.remove(ctx, ev, ev.Image)
	case RecipeUpdated:
		if ev.PreviousImage != "" && ev.PreviousImage != ev.Image {
			return j.remove(ctx, ev, ev.PreviousImage)
		}
	}
	return nil
}

func (j *Janitor) remove(ctx context.Context, ev RecipeEvent, image string) error {
	if image == "" {
		return nil
	}
	if err := j.images.Delete(ctx, image); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("remove image %s of recipe %s: %w", image, ev.RecipeID, err)
	}
	j.logger.InfoContext(ctx, "removed orphaned image", "image", image, "recipe_id", ev.RecipeID, "event", ev.Kind)
	return nil
}
