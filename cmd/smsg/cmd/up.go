/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/config"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:         "up",
	Short:       "Bootstrap and start the blob API server",
	Annotations: map[string]string{annotationBootstrap: "true"},
	Long: `Bootstrap structmsg by creating a configuration with a generated API key
if none exists, then start the blob API server.

Examples:
  smsg up
  smsg up --data-dir ./blobs --port 9000
  smsg up --config ./custom-config.yaml --print-keys`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		printKeys, _ := cmd.Flags().GetBool("print-keys")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		if !config.ConfigExists(configPath) {
			cmd.Printf("First run detected. Bootstrapping structmsg...\n")
			bootstrapped, err := config.BootstrapConfig(configPath, dataDir)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				bootstrapped.Logging.Level = cfg.Logging.Level
			}
			cfg = bootstrapped
			cmd.Printf("Configuration created at %s\n", configPath)
			if printKeys {
				cmd.Printf("API Key: %s\n", cfg.Security.APIKey)
			}
		}

		applyServerFlags(cmd)
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	addServerFlags(upCmd)
	upCmd.Flags().Bool("print-keys", false, "Print the generated API key to console")
}
