package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/bodystream"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Upload a file as a structured message",
	Long: `Upload a file to the blob server. The file is sent as a structured
message and resent if the server fails.

Example:
  smsg put photo.jpg --server http://127.0.0.1:8080 --api-key mysecretkey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := bodystream.NewFile(bodystream.FileConfig{FilePath: args[0]})
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer src.Close()

		blob, err := newClient(cmd).Upload(cmd.Context(), src)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", args[0], err)
		}

		cmd.Printf("Uploaded %s as %s (%d bytes, crc64 %s)\n", args[0], blob.ID, blob.Length, blob.Crc64)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	addClientFlags(putCmd)
	addEncodingFlags(putCmd)
}
