package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/handoff/internal/core/config"
	"github.com/vietddude/handoff/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session counts by lifecycle state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("status requires a configured database URL")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT status,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE is_dormant),
		       COUNT(*) FILTER (WHERE archived_at IS NOT NULL)
		FROM sessions
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		slog.Error("Failed to query sessions", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tTOTAL\tDORMANT\tARCHIVED")

	for rows.Next() {
		var status string
		var total, dormant, archived int64
		if err := rows.Scan(&status, &total, &dormant, &archived); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", status, total, dormant, archived)
	}
	_ = w.Flush()
}
