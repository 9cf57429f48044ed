package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/internal/store/mongostore"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Handle owns the connection to the configured database and exposes the
// repositories built on it.
type Handle struct {
	Users   services.UserRepository
	Recipes services.RecipeRepository

	driver string
	sqlDB  *sql.DB
	client *mongo.Client
}

// Open connects to the database selected by cfg.Driver. SQLite databases are
// migrated on open; MongoDB collections get their indexes. Postgres schemas
// are managed with the migrate command.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Handle, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLHandle(conn, config.DriverPostgres), nil

	case config.DriverSQLite:
		conn, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrateSQLite(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return NewSQLHandle(conn, config.DriverSQLite), nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDatabase)
		if err := mongostore.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &Handle{
			Users:   mongostore.NewUserRepository(database),
			Recipes: mongostore.NewRecipeRepository(database),
			driver:  config.DriverMongo,
			client:  client,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLHandle wraps an open SQL connection whose schema is already in place.
func NewSQLHandle(conn *sql.DB, driver string) *Handle {
	dialect := store.Postgres
	if driver == config.DriverSQLite {
		dialect = store.SQLite
	}
	return &Handle{
		Users:   store.NewUserRepository(conn, dialect),
		Recipes: store.NewRecipeRepository(conn, dialect),
		driver:  driver,
		sqlDB:   conn,
	}
}

// OpenSQL opens the SQL database selected by cfg.Driver without building
// repositories on it.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%q is not a SQL driver", cfg.Driver)
	}
}

// Driver returns the name of the backing driver.
func (h *Handle) Driver() string {
	return h.driver
}

// Ping verifies the database is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	switch {
	case h.sqlDB != nil:
		return ping(ctx, h.sqlDB)
	case h.client != nil:
		return h.client.Ping(ctx, readpref.Primary())
	default:
		return errors.New("database handle is closed")
	}
}

// Close releases the underlying connection pool.
func (h *Handle) Close(ctx context.Context) error {
	switch {
	case h.sqlDB != nil:
		return h.sqlDB.Close()
	case h.client != nil:
		return h.client.Disconnect(ctx)
	default:
		return nil
	}
}

// migrateSQLite applies pending migrations without closing conn.
func migrateSQLite(conn *sql.DB) error {
	migrator, err := NewMigrator(conn, config.DriverSQLite)
	if err != nil {
		return err
	}
	return migrator.Up()
}
