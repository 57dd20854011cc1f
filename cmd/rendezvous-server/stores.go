package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rendezvous/rendezvous/internal/config"
	"github.com/rendezvous/rendezvous/internal/domain/appointment"
	"github.com/rendezvous/rendezvous/internal/domain/identity"
	"github.com/rendezvous/rendezvous/internal/platform/blobstore"
	"github.com/rendezvous/rendezvous/internal/platform/db"
	"github.com/rendezvous/rendezvous/internal/platform/docstore"
	"github.com/rendezvous/rendezvous/migrations"
)

// stores holds the repositories for the configured driver along with the
// health probe and release hook of the underlying connection.
type stores struct {
	appointments appointment.Repository
	users        identity.UserRepository
	blobs        blobstore.BlobStore
	health       db.Check
	close        func()
}

func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
}

func mongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		appointment.Collection: appointment.Indexes,
		identity.Collection:    identity.Indexes,
		blobstore.Collection:   blobstore.Indexes,
	}
}

func memoryStores(limits blobstore.Limits) *stores {
	return &stores{
		appointments: appointment.NewRepoMemory(),
		users:        identity.NewUserRepoMemory(),
		blobs:        blobstore.NewInMemoryBlobStore(limits),
		health:       db.Check{Driver: config.DriverMemory},
	}
}

// openStores connects to the configured driver. With migrate set the schema
// (Postgres) or indexes (Mongo) are brought up to date first; otherwise a
// Postgres schema with pending migrations is refused.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*stores, error) {
	limits := blobstore.DefaultLimits(cfg.MaxAttachmentBytes)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg), logger)
		if err != nil {
			return nil, err
		}
		migrator := db.NewMigrator(pool, migrations.FS)
		if migrate {
			n, err := migrator.Up(ctx)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info().Int("applied", n).Msg("migrations applied")
		} else if err := migrator.RequireCurrent(ctx); err != nil {
			pool.Close()
			if errors.Is(err, db.ErrPendingMigrations) {
				return nil, fmt.Errorf("%w (run \"rendezvous-server migrate up\" or serve --migrate)", err)
			}
			return nil, err
		}
		return &stores{
			appointments: appointment.NewRepoPG(pool),
			users:        identity.NewUserRepoPG(pool),
			blobs:        blobstore.NewPGStore(pool, limits),
			health:       db.PostgresCheck(pool),
			close:        pool.Close,
		}, nil

	case config.DriverMongo:
		client, err := docstore.Connect(ctx, cfg.MongoURI, uint64(cfg.DBMaxConns))
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDatabase)
		if migrate {
			n, err := docstore.EnsureIndexes(ctx, database, mongoIndexes())
			if err != nil {
				_ = client.Disconnect(context.Background())
				return nil, fmt.Errorf("ensure indexes: %w", err)
			}
			logger.Info().Int("indexes", n).Msg("mongo indexes ensured")
		}
		return &stores{
			appointments: appointment.NewRepoMongo(database),
			users:        identity.NewUserRepoMongo(database),
			blobs:        blobstore.NewMongoStore(database, limits),
			health:       docstore.HealthCheck(client),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Warn().Err(err).Msg("mongo disconnect failed")
				}
			},
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memoryStores(limits), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: 5 * time.Minute,
		ApplicationName: "rendezvous-server",
	}
}
