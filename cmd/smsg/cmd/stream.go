package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// writeStream copies s into a new file at path. The file is removed again
// if the copy fails so no partial output is left behind.
func writeStream(ctx context.Context, path string, s bodystream.BodyStream) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := io.Copy(out, bodystream.NewReader(ctx, s))
	if err != nil {
		out.Close()
		os.Remove(path)
		return n, err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return n, fmt.Errorf("failed to close output file: %w", err)
	}
	return n, nil
}

// encodingOptions starts from the message config and applies any
// --segment-length and --crc64 flags given on the command line
func encodingOptions(cmd *cobra.Command) structmsg.EncodingOptions {
	options := structmsg.EncodingOptions{MaxSegmentLength: cfg.Message.MaxSegmentLength}
	if cfg.Message.Crc64 {
		options.Flags = structmsg.FlagCrc64
	}

	if cmd.Flags().Changed("segment-length") {
		options.MaxSegmentLength, _ = cmd.Flags().GetInt64("segment-length")
	}
	if cmd.Flags().Changed("crc64") {
		if on, _ := cmd.Flags().GetBool("crc64"); on {
			options.Flags |= structmsg.FlagCrc64
		} else {
			options.Flags &^= structmsg.FlagCrc64
		}
	}
	return options
}

func addEncodingFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("segment-length", structmsg.DefaultMaxSegmentLength, "Maximum segment content length in bytes")
	cmd.Flags().Bool("crc64", true, "Emit CRC64 segment and stream footers")
}
