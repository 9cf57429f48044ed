/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/events"
	"github.com/recipebox/apiserver/internal/mq"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes recipe events and removes orphaned images",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.MQ.Backend == config.MQNone {
			return errors.New("worker requires MQ_BACKEND to be rabbitmq or pubsub")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		objects, err := storage.Open(ctx, appConfig.Storage)
		if err != nil {
			return err
		}
		defer func() {
			_ = objects.Close()
		}()

		queue, err := mq.Open(ctx, appConfig.MQ)
		if err != nil {
			return err
		}
		defer func() {
			_ = queue.Close()
		}()

		janitor := events.NewJanitor(objects, slog.Default())
		return janitor.Run(ctx, queue, appConfig.MQ.Channel)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
