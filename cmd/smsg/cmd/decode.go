package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <in> <out>",
	Short: "Extract and verify the content of a structured message",
	Long: `Decode a structured message file, verifying every checksum.

Without --content-length the expected length is derived from the stream
header. Nothing is written when the message is corrupt.

Examples:
  smsg decode photo.xsm photo.jpg
  smsg decode photo.xsm photo.jpg --content-length 52311`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentLength, _ := cmd.Flags().GetInt64("content-length")
		if contentLength < 0 {
			header, err := readStreamHeader(args[0])
			if err != nil {
				return err
			}
			contentLength = header.ContentLength()
		}

		src, err := bodystream.NewFile(bodystream.FileConfig{FilePath: args[0]})
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		dec := structmsg.NewDecodingStream(src, structmsg.DecodingOptions{ContentLength: contentLength})
		defer dec.Close()

		n, err := writeStream(cmd.Context(), args[1], dec)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", args[0], err)
		}
		if n != contentLength {
			os.Remove(args[1])
			return fmt.Errorf("%w: decoded %d bytes, expected %d", structmsg.ErrMalformedMessage, n, contentLength)
		}

		cmd.Printf("Decoded %d bytes\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Int64("content-length", -1, "Expected content length (default: derived from the stream header)")
}

// readStreamHeader reads just the stream header of a message file
func readStreamHeader(path string) (structmsg.StreamHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return structmsg.StreamHeader{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	buf := make([]byte, structmsg.StreamHeaderLength)
	if _, err := io.ReadFull(f, buf); err != nil {
		return structmsg.StreamHeader{}, fmt.Errorf("%w: cannot read stream header: %v", structmsg.ErrMalformedMessage, err)
	}
	header := structmsg.ReadStreamHeader(buf)
	if header.ContentLength() < 0 {
		return structmsg.StreamHeader{}, fmt.Errorf("%w: message length %d is too short for %d segments",
			structmsg.ErrMalformedMessage, header.MessageLength, header.SegmentCount)
	}
	return header, nil
}
