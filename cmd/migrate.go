/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/store/mongostore"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig.Database
		if cfg.Driver == config.DriverMongo {
			client, err := mongostore.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Disconnect(cmd.Context())
			}()
			if err := mongostore.EnsureIndexes(cmd.Context(), client.Database(cfg.MongoDatabase)); err != nil {
				return err
			}
			slog.Info("indexes ensured", "database", cfg.MongoDatabase)
			return nil
		}

		return withMigrator(cmd, func(m *db.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return logVersion(m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.Database.Driver == config.DriverMongo {
			return errors.New("mongo has no migrations to roll back")
		}
		return withMigrator(cmd, func(m *db.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			return logVersion(m)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func withMigrator(cmd *cobra.Command, fn func(*db.Migrator) error) error {
	conn, err := db.OpenSQL(cmd.Context(), appConfig.Database)
	if err != nil {
		return err
	}

	migrator, err := db.NewMigrator(conn, appConfig.Database.Driver)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		_ = migrator.Close()
	}()

	return fn(migrator)
}

func logVersion(m *db.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	slog.Info("schema migrated", "driver", appConfig.Database.Driver, "version", version, "dirty", dirty)
	return nil
}
