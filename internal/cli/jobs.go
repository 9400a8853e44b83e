package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/handoff/internal/control"
	"github.com/vietddude/handoff/internal/core/config"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show the effective scheduled-job configuration",
	Run:   runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Defaults overlaid with whatever the config file tunes.
	effective := control.EffectiveJobConfigs(cfg)

	names := make([]string, 0, len(effective))
	for name := range effective {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tINTERVAL\tENABLED\tMAX RETRIES\tRETRY DELAY")
	for _, name := range names {
		jc := effective[name]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", name, jc.Interval, jc.Enabled, jc.MaxRetries, jc.RetryDelay)
	}
	_ = w.Flush()
}
