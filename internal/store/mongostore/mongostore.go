// Package mongostore persists users and recipes as MongoDB documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recipebox/apiserver/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	usersCollection   = "users"
	recipesCollection = "recipes"

	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

// Connect opens a MongoDB client for the configured URI and verifies the
// primary is reachable.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return nil, errors.New("mongo uri is required")
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(defaultConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the indexes both collections rely on. It is
// idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	}); err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}

	if _, err := db.Collection(recipesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("recipes_created_at_idx"),
		},
		{
			Keys:    bson.D{{Key: "author", Value: 1}},
			Options: options.Index().SetName("recipes_author_idx"),
		},
	}); err != nil {
		return fmt.Errorf("create recipes indexes: %w", err)
	}
	return nil
}

// now returns the current time truncated to BSON datetime precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
