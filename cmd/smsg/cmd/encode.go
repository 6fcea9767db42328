package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode <in> <out>",
	Short: "Wrap a file in a structured message",
	Long: `Encode the content of a file as a structured message.

Examples:
  smsg encode photo.jpg photo.xsm
  smsg encode photo.jpg photo.xsm --segment-length 1048576 --crc64=false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		options := encodingOptions(cmd)

		src, err := bodystream.NewFile(bodystream.FileConfig{FilePath: args[0]})
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer src.Close()

		enc, err := structmsg.NewEncodingStream(src, options)
		if err != nil {
			return err
		}
		if _, err := writeStream(cmd.Context(), args[1], enc); err != nil {
			return fmt.Errorf("failed to encode %s: %w", args[0], err)
		}

		logger.Debug().
			Str("input", args[0]).
			Int64("segment_length", options.MaxSegmentLength).
			Stringer("flags", options.Flags).
			Msg("encoded file")
		cmd.Printf("Encoded %d bytes into %d bytes (%d segments, %s)\n",
			src.Length(), enc.Length(), enc.SegmentCount(), options.Flags)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	addEncodingFlags(encodeCmd)
}
