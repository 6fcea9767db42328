package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the layout of a structured message",
	Long: `Print the stream header and every segment of a structured message file.
All checksums are verified while reading.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := bodystream.NewFile(bodystream.FileConfig{FilePath: args[0]})
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer src.Close()

		info, err := structmsg.Inspect(cmd.Context(), src)
		printMessageInfo(cmd, info)
		if err != nil {
			return fmt.Errorf("message is invalid: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func printMessageInfo(cmd *cobra.Command, info *structmsg.MessageInfo) {
	h := info.Header
	cmd.Printf("Version:        %d\n", h.Version)
	cmd.Printf("Message length: %d\n", h.MessageLength)
	cmd.Printf("Flags:          %s\n", h.Flags)
	cmd.Printf("Segments:       %d\n", h.SegmentCount)
	cmd.Printf("Content length: %d\n", info.ContentLength)
	if info.StreamChecksum != nil {
		cmd.Printf("Stream CRC64:   %s\n", hex.EncodeToString(info.StreamChecksum))
	}
	if len(info.Segments) == 0 {
		return
	}

	rows := make([][]string, 0, len(info.Segments))
	for _, s := range info.Segments {
		footerAt := "-"
		if h.Flags.FooterLength() > 0 {
			footerAt = strconv.FormatInt(s.Offset+structmsg.SegmentHeaderLength+int64(s.ContentLength), 10)
		}
		rows = append(rows, []string{
			strconv.Itoa(int(s.Number)),
			strconv.FormatInt(s.Offset, 10),
			strconv.FormatUint(s.ContentLength, 10),
			footerAt,
		})
	}
	cmd.Println()
	printTable(cmd.OutOrStdout(), []string{"Segment", "Offset", "Length", "Footer"}, rows)
}
