package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/frietkaart/media-ingest/internal/ingest"
)

func newIngestCommand() *cobra.Command {
	var (
		scope      string
		owner      string
		uploadedBy string
		title      string
		desc       string
		category   string
		tier       string
		tags       []string
		featured   bool
		primary    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Run the full ingestion pipeline for a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			services, closeStores, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			svc, err := serviceForScope(services, scope)
			if err != nil {
				return err
			}

			tr := ingest.NewTracker()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range tr.Events() {
					fmt.Fprintf(cmd.ErrOrStderr(), "%3d%%  %-12s %s\n", ev.Percent, ev.Status, ev.Stage)
				}
			}()

			rec, err := svc.Ingest(cmd.Context(), ingest.Upload{
				Filename: filepath.Base(args[0]),
				MimeType: detectMime(data),
				Data:     data,
			}, ingest.Metadata{
				OwnerRef:       owner,
				UploadedBy:     uploadedBy,
				Title:          title,
				Description:    desc,
				Category:       category,
				VisibilityTier: tier,
				Tags:           tags,
				Featured:       featured,
				Primary:        primary,
			}, tr)
			<-done
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "gallery", "ingestion variant: gallery or listing")
	cmd.Flags().StringVar(&owner, "owner", "", "owning listing id (required for listing scope)")
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "uploader identity")
	cmd.Flags().StringVar(&title, "title", "", "image title")
	cmd.Flags().StringVar(&desc, "description", "", "image description")
	cmd.Flags().StringVar(&category, "category", "", "image category")
	cmd.Flags().StringVar(&tier, "tier", "", "visibility tier")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().BoolVar(&featured, "featured", false, "mark as featured")
	cmd.Flags().BoolVar(&primary, "primary", false, "make this the owner's primary image")
	return cmd
}

func detectMime(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
