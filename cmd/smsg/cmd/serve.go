/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/api"
	"github.com/ssargent/structmsg/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the blob API server",
	Long: `Start the structmsg blob API server.

Blobs are uploaded and downloaded either raw or as structured messages,
which are verified on the way in. Metrics are exposed on /metrics.

Examples:
  smsg serve --api-key=mysecretkey --port=8080
  smsg serve --config ./smsg.yaml --data-dir ./blobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServerFlags(cmd)
		if cfg.Security.APIKey == "auto" {
			key, err := config.GenerateSecureKey(32)
			if err != nil {
				return err
			}
			cfg.Security.APIKey = key
			cmd.Printf("Generated API key for this run: %s\n", key)
		}
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
	serveCmd.Flags().String("api-key", "", "API key clients must send (default: from config)")
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	cmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	cmd.Flags().StringP("data-dir", "d", "./data", "Data directory for the blob store")
}

// applyServerFlags overrides the loaded config with flags set explicitly
func applyServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("bind") {
		cfg.Bind, _ = flags.GetString("bind")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("api-key") {
		cfg.Security.APIKey, _ = flags.GetString("api-key")
	}
}

// runServer opens the blob store and serves until interrupted
func runServer(cmd *cobra.Command) error {
	if container == nil {
		return errors.New("dependency container not initialized")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := container.GetStoreFactory().OpenStore(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cmd, store)
}

func serve(ctx context.Context, cmd *cobra.Command, store api.IBlobStore) error {
	cmd.Printf("Starting structmsg server on %s:%d\n", cfg.Bind, cfg.Port)
	cmd.Printf("Data directory: %s\n", cfg.DataDir)

	starter := container.GetServerFactory().CreateServerStarter()
	if err := starter.StartServer(ctx, store, api.ServerConfig{
		Port:             cfg.Port,
		Bind:             cfg.Bind,
		APIKey:           cfg.Security.APIKey,
		MaxSegmentLength: cfg.Message.MaxSegmentLength,
	}, logger); err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	return nil
}
