// Package health collects and grades system telemetry for the monitoring
// daemon itself: usage of the volume the database lives on, load averages,
// and uptime.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
)

// Snapshot describes the daemon host at a point in time.
type Snapshot struct {
	Hostname          string  `json:"hostname,omitempty"`
	Platform          string  `json:"platform,omitempty"`
	HostUptimeSeconds uint64  `json:"host_uptime_seconds"`
	ProcUptimeSeconds int64   `json:"process_uptime_seconds"`
	Load1             float64 `json:"load_1"`
	Load5             float64 `json:"load_5"`
	Load15            float64 `json:"load_15"`
	DiskPath          string  `json:"disk_path"`
	DiskTotalBytes    uint64  `json:"disk_total_bytes"`
	DiskFreeBytes     uint64  `json:"disk_free_bytes"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

// Collector gathers Snapshots. diskPath should point at the directory
// holding the database so the usage numbers track the volume the check log
// grows on.
type Collector struct {
	startTime time.Time
	diskPath  string
}

// NewCollector creates a Collector watching the given path. An empty path
// falls back to the working directory.
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = "."
	}
	return &Collector{
		startTime: time.Now(),
		diskPath:  diskPath,
	}
}

// Collect gathers a snapshot. Host info and load averages are best-effort
// and left at zero values on platforms that cannot supply them; disk usage
// is the one probe that must succeed, since a bad database path is worth
// surfacing.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		DiskPath:          c.diskPath,
		ProcUptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform
		snap.HostUptimeSeconds = info.Uptime
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = avg.Load1
		snap.Load5 = avg.Load5
		snap.Load15 = avg.Load15
	}

	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return snap, fmt.Errorf("disk usage for %s: %w", c.diskPath, err)
	}
	snap.DiskTotalBytes = usage.Total
	snap.DiskFreeBytes = usage.Free
	snap.DiskUsedPercent = usage.UsedPercent

	return snap, nil
}
