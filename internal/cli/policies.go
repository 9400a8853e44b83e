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

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List retention policies and the sessions bound to them",
	Run:   runPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}

func runPolicies(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("policies requires a configured database URL")
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
		SELECT p.name,
		       p.active_session_ttl_hours,
		       p.archived_session_ttl_days,
		       p.dormant_threshold_hours,
		       COUNT(s.id)
		FROM retention_policies p
		LEFT JOIN sessions s ON s.retention_policy = p.name
		GROUP BY p.name
		ORDER BY p.name`)
	if err != nil {
		slog.Error("Failed to query policies", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "POLICY\tACTIVE TTL (H)\tARCHIVE TTL (D)\tDORMANT AFTER (H)\tSESSIONS")

	for rows.Next() {
		var name string
		var activeTTL, archiveTTL, dormantAfter, sessions int64
		if err := rows.Scan(&name, &activeTTL, &archiveTTL, &dormantAfter, &sessions); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", name, activeTTL, archiveTTL, dormantAfter, sessions)
	}
	_ = w.Flush()
}
