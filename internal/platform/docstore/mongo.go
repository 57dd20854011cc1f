// Package docstore connects to MongoDB, the document-store alternative to
// PostgreSQL for appointments, users and attachments.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/rendezvous/rendezvous/internal/platform/db"
)

const connectTimeout = 10 * time.Second

// Connect opens a client for uri and verifies it with a primary ping.
// Writes use majority acknowledgement so a status change observed by one
// caller is durable before the response is sent.
func Connect(ctx context.Context, uri string, maxPoolSize uint64) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout).
		SetWriteConcern(writeconcern.Majority())
	if maxPoolSize > 0 {
		opts.SetMaxPoolSize(maxPoolSize)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the given indexes per collection. Existing indexes
// with the same keys and options are left in place.
func EnsureIndexes(ctx context.Context, database *mongo.Database, indexes map[string][]mongo.IndexModel) (int, error) {
	created := 0
	for coll, models := range indexes {
		if len(models) == 0 {
			continue
		}
		names, err := database.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return created, fmt.Errorf("create indexes on %s: %w", coll, err)
		}
		created += len(names)
	}
	return created, nil
}

// HealthCheck adapts a client to the /health/db endpoint.
func HealthCheck(client *mongo.Client) db.Check {
	return db.Check{
		Driver: "mongo",
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}
