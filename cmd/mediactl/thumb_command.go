package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frietkaart/media-ingest/internal/img"
)

// newThumbCommand derives a thumbnail locally, without touching any store.
// Useful to check what the pipeline would produce for a given file.
func newThumbCommand() *cobra.Command {
	var (
		out    string
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "thumb <file>",
		Short: "Derive a thumbnail locally and write it next to the source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			thumb := img.Derive(data, width, height, detectMime(data))
			if thumb.Fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: source not decodable, output is a verbatim copy")
			}

			dst := out
			if dst == "" {
				ext := filepath.Ext(args[0])
				dst = strings.TrimSuffix(args[0], ext) + "_thumb.jpg"
			}
			if err := os.WriteFile(dst, thumb.Data, 0o644); err != nil {
				return fmt.Errorf("write thumbnail: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  %dx%d  %d bytes\n", dst, thumb.Width, thumb.Height, len(thumb.Data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <file>_thumb.jpg)")
	cmd.Flags().IntVar(&width, "width", 400, "bounding box width")
	cmd.Flags().IntVar(&height, "height", 400, "bounding box height")
	return cmd
}
