package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id> <out>",
	Short: "Download a blob",
	Long: `Download a blob as a structured message, verify it and write the
content to a file. Broken connections are resumed where they stopped.

Example:
  smsg get 2Z3n0SyvQz4w0hKmYRu9yZZqyZ3 photo.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stream, err := newClient(cmd).Download(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", args[0], err)
		}
		defer stream.Close()

		n, err := writeStream(cmd.Context(), args[1], stream)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", args[0], err)
		}

		cmd.Printf("Downloaded %s to %s (%d bytes)\n", args[0], args[1], n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	addClientFlags(getCmd)
}
