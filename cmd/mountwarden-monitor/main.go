// Package main is the entrypoint for the MountWarden monitoring daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mountwarden/mountwarden/internal/api"
	"github.com/mountwarden/mountwarden/internal/config"
	"github.com/mountwarden/mountwarden/internal/engine"
	"github.com/mountwarden/mountwarden/internal/health"
	"github.com/mountwarden/mountwarden/internal/maintenance"
	"github.com/mountwarden/mountwarden/internal/metrics"
	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/monitoring"
	"github.com/mountwarden/mountwarden/internal/notifications"
	"github.com/mountwarden/mountwarden/internal/probe"
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

	rootCmd := &cobra.Command{
		Use:   "mountwarden-monitor",
		Short: "MountWarden monitoring daemon - NAS mount health for workstation fleets",
		Long: `MountWarden Monitor probes every configured workstation over SSH, records
mount health in a local SQLite database, and emails alerts when mounts fail.
Issues found during the overnight quiet window are held and delivered as a
single morning summary.

Run 'mountwarden-monitor config init' to create a starter configuration.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.mountwarden/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(&configPath),
		newStartCmd(&configPath),
		newOnceCmd(&configPath),
		newReportCmd(&configPath),
		newSweepCmd(&configPath),
		newFlushCmd(&configPath),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MountWarden Monitor %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return config.DefaultConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	return config.Load(resolved)
}

// newLogger builds the daemon logger. Output is human-readable unless
// MOUNTWARDEN_ENV=production selects plain JSON.
func newLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("MOUNTWARDEN_ENV") != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level != "" {
		if lvl, err := zerolog.ParseLevel(level); err == nil {
			logger = logger.Level(lvl)
		}
	}
	return logger
}

// monitorConfig maps the YAML inventory onto the cycle runner's settings.
func monitorConfig(cfg *config.Config) monitoring.Config {
	mc := monitoring.Config{
		Interval:      cfg.Interval(),
		MaxConcurrent: cfg.MaxConcurrentProbes,
		AutoRemount:   cfg.AutoRemount,
		TrackUsers:    cfg.TrackUsers,
	}
	for _, ws := range cfg.Workstations {
		mc.Workstations = append(mc.Workstations, monitoring.Workstation{
			Host:   ws.Host,
			Mounts: ws.Mounts,
		})
	}
	for _, sw := range cfg.Software {
		mc.Software = append(mc.Software, monitoring.Software{
			Name:       sw.Name,
			MountPoint: sw.MountPoint,
		})
	}
	return mc
}

// daemon bundles the long-lived components shared by the start and once
// commands.
type daemon struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *engine.Engine
	batcher  *engine.Batcher
	prober   *probe.Prober
	sender   notifications.Sender
	sweeper  *maintenance.Sweeper
	monitor  *monitoring.Monitor
}

func buildDaemon(cfg *config.Config, logger zerolog.Logger) (*daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		st.Close()
		return nil, err
	}

	sender, err := notifications.NewSender(cfg.SMTP, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		metrics:  m,
		engine:   engine.NewWithStore(st, logger),
		batcher:  engine.NewBatcherWithStore(st, cfg.QuietHours, logger),
		prober:   probe.New(cfg.Probe.Timeouts(), logger),
		sender:   sender,
		sweeper:  maintenance.NewSweeper(st, logger),
	}
	d.monitor = monitoring.NewMonitor(
		d.prober, d.engine, d.batcher, d.sender, d.store, d.sweeper,
		d.metrics, monitorConfig(cfg), logger,
	)
	return d, nil
}

func (d *daemon) Close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("failed to close store")
	}
}

func newStartCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the monitoring daemon",
		Long: `Start the monitoring daemon: periodic probe cycles over the workstation
inventory, the nightly retention sweep, the morning issue flush, and the
embedded HTTP API when enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(*configPath, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the API listen address from the config")

	return cmd
}

func runStart(configPath, listenOverride string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("starting mountwarden monitor")

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup telemetry snapshot so a degraded host is visible before the
	// first cycle report.
	collector := health.NewCollector(filepath.Dir(cfg.DatabasePath))
	if snap, err := collector.Collect(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to collect host telemetry")
	} else {
		logger.Info().
			Str("hostname", snap.Hostname).
			Float64("disk_used_percent", snap.DiskUsedPercent).
			Msg("host telemetry")
	}

	var srv *http.Server
	if cfg.API.Enabled {
		routerCfg := api.Config{
			RateLimitPerMinute: cfg.API.RatePerMinute,
			MetricsEnabled:     cfg.API.MetricsEnabled,
			Version:            Version,
			Commit:             Commit,
			BuildDate:          BuildDate,
		}
		checker := health.NewChecker(health.ThresholdsFor(cfg.Interval()))
		router, err := api.NewRouter(routerCfg, d.store, d.sweeper, d.registry, collector, checker, d.monitor, logger)
		if err != nil {
			return fmt.Errorf("initialize router: %w", err)
		}

		listen := cfg.API.Listen
		if listenOverride != "" {
			listen = listenOverride
		}
		srv = &http.Server{
			Addr:              listen,
			Handler:           router.Engine,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
		}

		go func() {
			logger.Info().Str("addr", listen).Msg("HTTP API listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("HTTP server error")
			}
		}()
	}

	nightly := maintenance.NewScheduler(d.sweeper, d.metrics, logger)
	if err := nightly.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start nightly sweep scheduler")
	}
	defer nightly.Stop()

	morning := maintenance.NewMorningScheduler(d.batcher, d.sender, d.metrics, cfg.QuietHours.EndHour, logger)
	if err := morning.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start morning flush scheduler")
	}
	defer morning.Stop()

	d.monitor.Start(ctx)
	defer d.monitor.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}

	return nil
}

func newOnceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single probe cycle and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(*configPath)
		},
	}
}

func runOnce(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.monitor.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("probe cycle: %w", err)
	}

	printCycleReport(report)
	return nil
}

func newReportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Run a probe cycle and print the full text report",
		Long: `Run a single probe cycle and print the same plain-text report that alert
emails carry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(*configPath)
		},
	}
}

func runReport(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.monitor.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("probe cycle: %w", err)
	}

	body, err := notifications.RenderCycleReport(report)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	fmt.Print(body)
	return nil
}

func printCycleReport(report *models.CycleReport) {
	fmt.Printf("Cycle %s finished in %s\n", report.CycleID, report.Duration().Round(time.Millisecond))
	fmt.Printf("Workstations: %d total, %d online, %d offline, %d with issues\n\n",
		report.Total(), report.Online(), report.Offline(), report.WithIssues())

	fmt.Printf("%-24s %-8s %-14s %-6s %s\n", "WORKSTATION", "ONLINE", "MOUNTS", "USERS", "PROBLEMS")
	fmt.Println(strings.Repeat("-", 84))
	for _, res := range report.Results {
		fmt.Printf("%-24s %-8s %-14s %-6d %s\n",
			res.Workstation, yesNo(res.Online), mountCell(res), res.ActiveUsers, problemCell(res))
	}

	if report.Cleanup != nil && report.Cleanup.TotalDeleted() > 0 {
		fmt.Printf("\nRetention sweep removed %d rows\n", report.Cleanup.TotalDeleted())
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func mountCell(res *models.WorkstationResult) string {
	if !res.Online {
		return "-"
	}
	ok := 0
	for _, c := range res.Mounts {
		if c.Status.IsSuccess() {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d ok", ok, len(res.Mounts))
}

func problemCell(res *models.WorkstationResult) string {
	var parts []string
	if res.Error != "" {
		parts = append(parts, res.Error)
	}
	for _, sw := range res.SoftwareIssues {
		parts = append(parts, fmt.Sprintf("%s missing", sw.Software))
	}
	if len(parts) == 0 && !res.MountsOK && res.Online {
		parts = append(parts, "mount failure")
	}
	return strings.Join(parts, "; ")
}

func newSweepCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a retention sweep immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(*configPath, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")

	return cmd
}

func runSweep(configPath string, dryRun bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sweeper := maintenance.NewSweeper(st, logger)
	report, err := sweeper.Sweep(context.Background(), dryRun)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	printCleanupReport(report)
	return nil
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
	fmt.Printf("Completed in %s\n", report.Duration.Round(time.Millisecond))
}

func newFlushCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send the morning summary for pending off-hours issues now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(*configPath)
		},
	}
}

func runFlush(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	sender, err := notifications.NewSender(cfg.SMTP, logger)
	if err != nil {
		return err
	}

	batcher := engine.NewBatcherWithStore(st, cfg.QuietHours, logger)
	morning := maintenance.NewMorningScheduler(batcher, sender, m, cfg.QuietHours.EndHour, logger)

	if err := morning.Flush(context.Background(), time.Now()); err != nil {
		return fmt.Errorf("flush pending issues: %w", err)
	}

	fmt.Println("Pending off-hours issues flushed.")
	return nil
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the monitor configuration",
	}

	cmd.AddCommand(
		newConfigInitCmd(configPath),
		newConfigShowCmd(configPath),
		newConfigValidateCmd(configPath),
	)

	return cmd
}

func newConfigInitCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(*configPath, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func runConfigInit(configPath string, force bool) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	cfg.Workstations = []config.WorkstationConfig{
		{Host: "edit-bay-01.example.com", Mounts: []string{"/Volumes/SAN"}},
	}
	cfg.Software = []config.SoftwareConfig{
		{Name: "ProjectLibrary", MountPoint: "/Volumes/SAN"},
	}

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Edit the workstation inventory before starting the monitor.")
	return nil
}

func newConfigShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(*configPath)
		},
	}
}

func runConfigShow(configPath string) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Config file: %s\n\n", path)
	fmt.Printf("Database:       %s\n", cfg.DatabasePath)
	fmt.Printf("Check interval: %s\n", cfg.Interval())
	fmt.Printf("Max concurrent: %d\n", cfg.MaxConcurrentProbes)
	fmt.Printf("Auto remount:   %v\n", cfg.AutoRemount)
	fmt.Printf("Track users:    %v\n", cfg.TrackUsers)
	fmt.Printf("Quiet hours:    %02d:00-%02d:00\n", cfg.QuietHours.StartHour, cfg.QuietHours.EndHour)
	fmt.Printf("SMTP alerts:    %v\n", cfg.SMTP.Enabled)
	if cfg.API.Enabled {
		fmt.Printf("HTTP API:       enabled on %s\n", cfg.API.Listen)
	} else {
		fmt.Printf("HTTP API:       disabled\n")
	}

	fmt.Printf("\nWorkstations (%d):\n", len(cfg.Workstations))
	for _, ws := range cfg.Workstations {
		fmt.Printf("  %-28s %s\n", ws.Host, strings.Join(ws.Mounts, ", "))
	}

	if len(cfg.Software) > 0 {
		fmt.Printf("\nSoftware checks (%d):\n", len(cfg.Software))
		for _, sw := range cfg.Software {
			fmt.Printf("  %-28s %s\n", sw.Name, sw.MountPoint)
		}
	}

	return nil
}

func newConfigValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Println("Configuration OK")
			return nil
		},
	}
}
