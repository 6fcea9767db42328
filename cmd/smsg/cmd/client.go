package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/client"
	"github.com/ssargent/structmsg/pkg/reliable"
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Server URL (default: from config)")
	cmd.Flags().String("api-key", "", "API key (default: from config)")
}

// newClient builds a client from config, honoring --server and --api-key
func newClient(cmd *cobra.Command) *client.Client {
	server := cfg.Server
	if cmd.Flags().Changed("server") {
		server, _ = cmd.Flags().GetString("server")
	}
	apiKey := cfg.Security.APIKey
	if cmd.Flags().Changed("api-key") {
		apiKey, _ = cmd.Flags().GetString("api-key")
	}
	if apiKey == "auto" {
		apiKey = ""
	}

	return client.New(server, client.Options{
		APIKey:   apiKey,
		Encoding: encodingOptions(cmd),
		Retry: reliable.Options{
			MaxRetryRequests:  cfg.Retry.MaxRetryRequests,
			InitialBackoff:    cfg.Retry.InitialBackoff,
			MaxBackoff:        cfg.Retry.MaxBackoff,
			BackoffMultiplier: cfg.Retry.Multiplier,
			Logger:            logger,
		},
	})
}
