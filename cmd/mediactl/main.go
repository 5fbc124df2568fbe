// mediactl operates the media ingestion pipeline from the shell: one-off
// ingests, deletes, primary promotions and queries against the real stores,
// plus a local thumbnail check that needs no infrastructure.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/frietkaart/media-ingest/internal/ingest"
	"github.com/frietkaart/media-ingest/internal/setup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mediactl",
		Short:         "Operate the media ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	root.AddCommand(
		newIngestCommand(),
		newDeleteCommand(),
		newPromoteCommand(),
		newCounterCommand(),
		newQueryCommand(),
		newThumbCommand(),
		newFmtSizeCommand(),
	)
	return root
}

// openServices builds the orchestrators against the configured stores. The
// returned closer must be deferred.
func openServices(ctx context.Context) (map[ingest.Scope]*ingest.Service, func(), error) {
	cfg, err := setup.Load()
	if err != nil {
		return nil, nil, err
	}
	stores, err := setup.BuildStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return setup.Services(stores, logger), stores.Close, nil
}

func serviceForScope(services map[ingest.Scope]*ingest.Service, scope string) (*ingest.Service, error) {
	if svc, ok := services[ingest.Scope(scope)]; ok {
		return svc, nil
	}
	return nil, &ingest.ValidationError{Reason: "scope must be \"gallery\" or \"listing\""}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
