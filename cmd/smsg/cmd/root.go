/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/config"
	"github.com/ssargent/structmsg/pkg/di"
	"github.com/ssargent/structmsg/pkg/logging"
)

// annotationBootstrap marks commands that create a missing config file
const annotationBootstrap = "bootstrap"

var (
	container *di.Container
	cfg       *config.Config
	logger    = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smsg",
	Short: "structmsg - structured message codec and blob service",
	Long: `structmsg wraps content in checksummed structured messages (XSM/1.0)
and serves a blob API that accepts and produces them.

Files can be encoded, decoded and inspected locally, or moved to and from
a running server with put and get.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		logLevel, _ := cmd.Flags().GetString("log-level")

		if configPath != "" && !config.ConfigExists(configPath) && cmd.Annotations[annotationBootstrap] != "" {
			configPath = ""
		}
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		l, err := logging.New(loaded.Logging, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		cfg, logger = loaded, l
		return nil
	},
}

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads configPath, or the default location when it exists.
// Without either the built-in defaults apply.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
		if !config.ConfigExists(configPath) {
			return config.DefaultConfig(), nil
		}
	}
	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}
