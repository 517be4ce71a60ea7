// Package main is the entrypoint for the MountWarden query CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mountwarden/mountwarden/internal/config"
	"github.com/mountwarden/mountwarden/internal/export"
	"github.com/mountwarden/mountwarden/internal/maintenance"
	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "mountwarden-query",
		Short: "Query the MountWarden mount-health database",
		Long: `mountwarden-query reads the database maintained by the monitoring daemon:
current mount status across the fleet, failure history, reliability rates,
and retention administration.

The database location comes from the monitor config; use --db to point at a
database file directly.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.mountwarden/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides the config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(&configPath, &dbPath),
		newFailuresCmd(&configPath, &dbPath),
		newReliabilityCmd(&configPath, &dbPath),
		newSoftwareCmd(&configPath, &dbPath),
		newDetailCmd(&configPath, &dbPath),
		newHistoryCmd(&configPath, &dbPath),
		newStatsCmd(&configPath, &dbPath),
		newConfigCmd(&configPath, &dbPath),
		newUpdateConfigCmd(&configPath, &dbPath),
		newCleanupCmd(&configPath, &dbPath),
		newExportCmd(&configPath, &dbPath),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MountWarden Query %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// openStore resolves the database path and opens it. The query CLI keeps
// store logging disabled so tables stay clean on stdout.
func openStore(configPath, dbPath string) (*store.Store, error) {
	path := dbPath
	if path == "" {
		cfgPath := configPath
		if cfgPath == "" {
			p, err := config.DefaultConfigPath()
			if err != nil {
				return nil, err
			}
			cfgPath = p
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w (or pass --db)", err)
		}
		path = cfg.DatabasePath
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return store.New(path, logger)
}

func newStatusCmd(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest check per mount across the fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.CurrentStatus(context.Background())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No mount checks recorded yet.")
				return nil
			}

			fmt.Printf("%-24s %-24s %-18s %-20s %-6s %s\n",
				"WORKSTATION", "MOUNT", "STATUS", "CHECKED", "USERS", "NOTE")
			fmt.Println(strings.Repeat("-", 110))
			for _, row := range rows {
				note := row.ErrorMessage
				if row.Online != nil && !*row.Online {
					note = "workstation offline"
				}
				fmt.Printf("%-24s %-24s %-18s %-20s %-6d %s\n",
					row.Workstation, row.MountPoint, row.Status,
					formatTime(row.CheckedAt), row.ActiveUsers, truncate(note, 36))
			}
			return nil
		},
	}
}

func newFailuresCmd(configPath, dbPath *string) *cobra.Command {
	var hours int
	var all bool

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show failed checks grouped by mount",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			rows, err := st.RecentFailures(ctx, hours, time.Now())
			if err != nil {
				return err
			}

			if len(rows) == 0 {
				fmt.Printf("No failures in the last %d hours.\n", hours)
			} else {
				fmt.Printf("Failed checks in the last %d hours:\n\n", hours)
				fmt.Printf("%-24s %-24s %-9s %-20s %s\n",
					"WORKSTATION", "MOUNT", "FAILURES", "LAST FAILURE", "ERRORS")
				fmt.Println(strings.Repeat("-", 110))
				for _, row := range rows {
					fmt.Printf("%-24s %-24s %-9d %-20s %s\n",
						row.Workstation, row.MountPoint, row.Failures,
						formatTime(row.LastFailure), truncate(row.Errors, 36))
				}
			}

			if !all {
				return nil
			}

			episodes, err := st.UnresolvedEpisodes(ctx)
			if err != nil {
				return err
			}
			if len(episodes) == 0 {
				fmt.Println("\nNo open failure episodes.")
				return nil
			}

			fmt.Printf("\nOpen failure episodes (%d):\n\n", len(episodes))
			fmt.Printf("%-6s %-24s %-24s %-20s %-7s %s\n",
				"ID", "WORKSTATION", "MOUNT", "FIRST FAILURE", "COUNT", "OPEN FOR")
			fmt.Println(strings.Repeat("-", 110))
			for _, ep := range episodes {
				fmt.Printf("%-6d %-24s %-24s %-20s %-7d %s\n",
					ep.ID, ep.Workstation, ep.MountPoint,
					formatTime(ep.FirstFailure), ep.FailureCount,
					formatDuration(time.Since(ep.FirstFailure)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "trailing window in hours")
	cmd.Flags().BoolVar(&all, "all", false, "also list open failure episodes")

	return cmd
}

func newReliabilityCmd(configPath, dbPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "reliability",
		Short: "Show per-workstation success rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.Reliability(context.Background(), days, time.Now())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("No checks recorded in the last %d days.\n", days)
				return nil
			}

			fmt.Printf("Mount reliability over the last %d days (least reliable first):\n\n", days)
			fmt.Printf("%-24s %-8s %-8s %s\n", "WORKSTATION", "CHECKS", "OK", "SUCCESS")
			fmt.Println(strings.Repeat("-", 52))
			for _, row := range rows {
				fmt.Printf("%-24s %-8d %-8d %6.1f%%\n",
					row.Workstation, row.TotalChecks, row.SuccessfulChecks, row.SuccessRate)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "trailing window in days")

	return cmd
}

func newSoftwareCmd(configPath, dbPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "software",
		Short: "Show software accessibility per workstation",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.SoftwareSummary(context.Background(), days, time.Now())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("No software checks recorded in the last %d days.\n", days)
				return nil
			}

			fmt.Printf("Software availability over the last %d days:\n\n", days)
			fmt.Printf("%-24s %-20s %-20s %-8s %-8s %s\n",
				"WORKSTATION", "SOFTWARE", "MOUNT", "CHECKS", "OK", "LAST CHECK")
			fmt.Println(strings.Repeat("-", 108))
			for _, row := range rows {
				fmt.Printf("%-24s %-20s %-20s %-8d %-8d %s\n",
					row.Workstation, row.SoftwareName, row.MountPoint,
					row.TotalChecks, row.AccessibleChecks, formatTime(row.LastCheck))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "trailing window in days")

	return cmd
}

func newDetailCmd(configPath, dbPath *string) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "detail <workstation>",
		Short: "Show one workstation's state, recent checks, and open episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			host := args[0]
			detail, err := st.WorkstationDetail(context.Background(), host, hours, time.Now())
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no recorded checks for workstation %q", host)
				}
				return err
			}

			printWorkstationDetail(host, detail)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "trailing window in hours")

	return cmd
}

func printWorkstationDetail(host string, detail *models.WorkstationDetail) {
	fmt.Printf("Workstation: %s\n", host)

	if state := detail.State; state != nil {
		fmt.Printf("Online:               %s\n", yesNo(state.IsOnline))
		fmt.Printf("Last check:           %s\n", formatTimePtr(state.LastCheck))
		fmt.Printf("Last successful:      %s\n", formatTimePtr(state.LastSuccessfulCheck))
		fmt.Printf("Consecutive failures: %d\n", state.ConsecutiveFailures)
		if state.ActiveUsers > 0 {
			fmt.Printf("Active users:         %d (%s)\n", state.ActiveUsers, state.JoinedUserList())
		} else {
			fmt.Printf("Active users:         0\n")
		}
		if state.MountSummary != "" {
			fmt.Printf("Mounts:               %s\n", state.MountSummary)
		}
	}

	if len(detail.OpenEpisodes) > 0 {
		fmt.Printf("\nOpen failure episodes (%d):\n", len(detail.OpenEpisodes))
		for _, ep := range detail.OpenEpisodes {
			fmt.Printf("  %-24s since %s (%d failures)\n",
				ep.MountPoint, formatTime(ep.FirstFailure), ep.FailureCount)
		}
	}

	fmt.Printf("\nChecks in the last %d hours (%d):\n\n", detail.WindowHours, len(detail.Checks))
	if len(detail.Checks) == 0 {
		fmt.Println("  none")
		return
	}
	fmt.Printf("%-20s %-24s %-18s %-8s %s\n", "TIMESTAMP", "MOUNT", "STATUS", "MS", "ERROR")
	fmt.Println(strings.Repeat("-", 100))
	for _, check := range detail.Checks {
		fmt.Printf("%-20s %-24s %-18s %-8s %s\n",
			formatTime(check.Timestamp), check.MountPoint, check.Status,
			formatMs(check.ResponseTimeMs), truncate(check.ErrorMessage, 30))
	}
}

func newHistoryCmd(configPath, dbPath *string) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "history <workstation> <mount-point>",
		Short: "Show the check history for one mount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			host, mountPoint := args[0], args[1]
			checks, err := st.MountHistory(context.Background(), host, mountPoint, hours, time.Now())
			if err != nil {
				return err
			}
			if len(checks) == 0 {
				fmt.Printf("No checks for %s on %s in the last %d hours.\n", mountPoint, host, hours)
				return nil
			}

			fmt.Printf("History for %s on %s (last %d hours, newest first):\n\n", mountPoint, host, hours)
			fmt.Printf("%-20s %-18s %-8s %-24s %s\n", "TIMESTAMP", "STATUS", "MS", "ACTION", "ERROR")
			fmt.Println(strings.Repeat("-", 104))
			for _, check := range checks {
				fmt.Printf("%-20s %-18s %-8s %-24s %s\n",
					formatTime(check.Timestamp), check.Status, formatMs(check.ResponseTimeMs),
					truncate(check.ActionTaken, 22), truncate(check.ErrorMessage, 28))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 168, "trailing window in hours")

	return cmd
}

func newStatsCmd(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database size, row counts, and check-log span",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := st.DBInfo(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Database: %s\n", info.Path)
			fmt.Printf("Size:     %s\n\n", formatBytes(info.SizeBytes))

			tables := make([]string, 0, len(info.TableCounts))
			for table := range info.TableCounts {
				tables = append(tables, table)
			}
			sort.Strings(tables)

			fmt.Printf("%-24s %s\n", "TABLE", "ROWS")
			fmt.Println(strings.Repeat("-", 36))
			for _, table := range tables {
				fmt.Printf("%-24s %d\n", table, info.TableCounts[table])
			}

			if info.OldestCheck != nil && info.NewestCheck != nil {
				fmt.Printf("\nCheck log spans %s to %s\n",
					formatTime(*info.OldestCheck), formatTime(*info.NewestCheck))
			}
			return nil
		},
	}
}

func newConfigCmd(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the retention configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := st.RetentionConfig(context.Background())
			if err != nil {
				return err
			}

			printRetentionConfig(cfg)
			return nil
		},
	}
}

func printRetentionConfig(cfg models.RetentionConfig) {
	if cfg.Disabled() {
		fmt.Println("Retention: disabled (keep_hours = 0), nothing is ever deleted")
		return
	}
	fmt.Printf("Retention: keep %d hours, %s mode\n", cfg.KeepHours, cfg.Mode())
	if cfg.Aggressive {
		fmt.Println("Aggressive cleanup also removes open episodes, stale workstation")
		fmt.Println("snapshots, and pending off-hours issues past the cutoff.")
	}
}

func newUpdateConfigCmd(configPath, dbPath *string) *cobra.Command {
	var keepHours int
	var aggressive bool

	cmd := &cobra.Command{
		Use:   "update-config",
		Short: "Change the retention configuration",
		Long: `Change the retention configuration. keep_hours accepts 0 (retention
disabled) or a value between 1 and 720. Only flags you pass are changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep-hours") && !cmd.Flags().Changed("aggressive") {
				return errors.New("pass --keep-hours and/or --aggressive")
			}

			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
			sweeper := maintenance.NewSweeper(st, logger)

			cfg, err := sweeper.Config(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep-hours") {
				cfg.KeepHours = keepHours
			}
			if cmd.Flags().Changed("aggressive") {
				cfg.Aggressive = aggressive
			}

			if err := sweeper.UpdateConfig(ctx, cfg); err != nil {
				return err
			}

			fmt.Println("Retention configuration updated.")
			printRetentionConfig(cfg)
			return nil
		},
	}

	cmd.Flags().IntVar(&keepHours, "keep-hours", models.DefaultKeepHours, "hours of history to keep (0 disables retention)")
	cmd.Flags().BoolVar(&aggressive, "aggressive", false, "enable aggressive cleanup")

	return cmd
}

func newCleanupCmd(configPath, dbPath *string) *cobra.Command {
	var dryRun bool
	var confirm bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a retention sweep",
		Long: `Run a retention sweep against the database. Without --confirm the sweep
is a dry run that only reports what would be deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
			sweeper := maintenance.NewSweeper(st, logger)

			effectiveDryRun := dryRun || !confirm
			report, err := sweeper.Sweep(context.Background(), effectiveDryRun)
			if err != nil {
				return err
			}

			printCleanupReport(report)
			if effectiveDryRun && !dryRun {
				fmt.Println("\nRun again with --confirm to delete these rows.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "actually delete rows")

	return cmd
}

func printCleanupReport(report *models.CleanupReport) {
	if report.Skipped {
		fmt.Println("Retention is disabled (keep_hours = 0); nothing to do.")
		return
	}

	verb := "deleted"
	if report.DryRun {
		verb = "would delete"
	}

	fmt.Printf("Retention sweep (%s mode, cutoff %s)\n", report.Mode, report.Cutoff.Format(time.RFC3339))
	fmt.Println(strings.Repeat("-", 56))

	tables := make([]string, 0, len(report.DeletedByTable))
	for table := range report.DeletedByTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("%-24s %s %d rows\n", table, verb, report.DeletedByTable[table])
	}
	fmt.Printf("%-24s %s %d rows total\n", "", verb, report.TotalDeleted())

	if report.Compacted {
		fmt.Println("Database compacted")
	}
}

func newExportCmd(configPath, dbPath *string) *cobra.Command {
	var table string
	var formatFlag string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a table as CSV or JSON",
		Long: `Export a whole table. Valid tables: mount_checks, workstation_state,
failure_episodes, software_checks, off_hours_issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			st, err := openStore(*configPath, *dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
			exporter := export.NewExporter(st, logger)

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := exporter.WriteTable(context.Background(), w, table, format); err != nil {
				return err
			}
			if output != "" {
				fmt.Printf("Exported %s to %s\n", table, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "table to export (required)")
	cmd.Flags().StringVar(&formatFlag, "format", "csv", "output format: csv or json")
	cmd.Flags().StringVar(&output, "output", "", "write to a file instead of stdout")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *ms)
}

// formatDuration renders a duration in the largest two useful units.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
