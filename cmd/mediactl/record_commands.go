package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/frietkaart/media-ingest/internal/ingest"
	"github.com/frietkaart/media-ingest/internal/meta"
)

func newDeleteCommand() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a record, both blobs, and the owner's reference to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, closeStores, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			svc, err := serviceForScope(services, scope)
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "gallery", "ingestion variant: gallery or listing")
	return cmd
}

func newPromoteCommand() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "promote <record-id>",
		Short: "Make a record its owner's primary image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, closeStores, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			svc, err := serviceForScope(services, scope)
			if err != nil {
				return err
			}
			if err := svc.PromoteToPrimary(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "promoted", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "listing", "ingestion variant: gallery or listing")
	return cmd
}

func newCounterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <record-id> <likes|downloads>",
		Short: "Increment a record's like or download counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var counter string
			switch args[1] {
			case "likes":
				counter = meta.CounterLikes
			case "downloads":
				counter = meta.CounterDownloads
			default:
				return fmt.Errorf("counter must be likes or downloads, got %q", args[1])
			}

			services, closeStores, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			svc, err := serviceForScope(services, "gallery")
			if err != nil {
				return err
			}
			return svc.IncrementCounter(cmd.Context(), args[0], counter)
		},
	}
	return cmd
}

func newQueryCommand() *cobra.Command {
	var (
		owner    string
		category string
		tier     string
		tag      string
		featured bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List image records matching the given filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, closeStores, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			var filters meta.Filters
			if cmd.Flags().Changed("owner") {
				filters.OwnerRef = &owner
			}
			if cmd.Flags().Changed("category") {
				filters.Category = &category
			}
			if cmd.Flags().Changed("tier") {
				filters.VisibilityTier = &tier
			}
			if cmd.Flags().Changed("featured") {
				filters.Featured = &featured
			}
			filters.Tag = tag

			svc, err := serviceForScope(services, "gallery")
			if err != nil {
				return err
			}
			records, err := svc.Query(cmd.Context(), filters)
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "filter by owning listing id (empty matches gallery scope)")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&tier, "tier", "", "filter by visibility tier")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag (applied client-side)")
	cmd.Flags().BoolVar(&featured, "featured", false, "filter by featured flag")
	return cmd
}

func newFmtSizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fmt-size <bytes>",
		Short: "Render a byte count the way the site shows it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid byte count %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ingest.FormatByteSize(n))
			return nil
		},
	}
}
