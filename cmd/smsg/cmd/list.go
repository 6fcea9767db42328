package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored blobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blobs, err := newClient(cmd).List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list blobs: %w", err)
		}

		if len(blobs) == 0 {
			cmd.Println("No blobs stored")
			return nil
		}

		rows := make([][]string, 0, len(blobs))
		for _, b := range blobs {
			rows = append(rows, []string{b.ID, strconv.FormatInt(b.Length, 10), b.Crc64, b.Created.Format(time.RFC3339)})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Length", "Crc64", "Created"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	addClientFlags(listCmd)
}
