// Package probe runs remote mount and software checks against workstations.
//
// Every remote command goes through the system ssh binary in batch mode and
// carries its own deadline on top of the caller's context, so a wedged host
// or stale NFS handle cannot stall a monitoring cycle. Command execution is
// separated from output parsing to keep the parsers testable without a live
// host.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// ErrTimeout marks a probe command that exceeded its deadline. Callers map it
// to an unreachable check instead of a failed one.
var ErrTimeout = errors.New("probe timed out")

// sshOptions are applied to every remote command. BatchMode with password
// auth disabled makes ssh fail fast instead of prompting when a key is
// missing or wrong.
var sshOptions = []string{
	"-o", "ConnectTimeout=10",
	"-o", "StrictHostKeyChecking=no",
	"-o", "BatchMode=yes",
	"-o", "PasswordAuthentication=no",
}

// Runner executes a local command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Timeouts bounds each probe command independently.
type Timeouts struct {
	Ping     time.Duration
	Mounts   time.Duration
	Software time.Duration
	Remount  time.Duration
	Users    time.Duration
}

// DefaultTimeouts returns the deadlines used when the configuration does not
// override them.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ping:     5 * time.Second,
		Mounts:   30 * time.Second,
		Software: 10 * time.Second,
		Remount:  60 * time.Second,
		Users:    10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Ping <= 0 {
		t.Ping = def.Ping
	}
	if t.Mounts <= 0 {
		t.Mounts = def.Mounts
	}
	if t.Software <= 0 {
		t.Software = def.Software
	}
	if t.Remount <= 0 {
		t.Remount = def.Remount
	}
	if t.Users <= 0 {
		t.Users = def.Users
	}
	return t
}

// MountEntry is one mount reported by a workstation's mount table.
type MountEntry struct {
	Device     string
	MountPoint string
	Status     models.MountStatus
}

// Prober checks workstation reachability, mount health, and software
// availability over SSH.
type Prober struct {
	runner   Runner
	timeouts Timeouts
	logger   zerolog.Logger
}

// New creates a Prober that shells out to ping and ssh.
func New(timeouts Timeouts, logger zerolog.Logger) *Prober {
	return NewWithRunner(execRunner{}, timeouts, logger)
}

// NewWithRunner creates a Prober with a custom command runner. Zero timeout
// fields fall back to the defaults.
func NewWithRunner(runner Runner, timeouts Timeouts, logger zerolog.Logger) *Prober {
	return &Prober{
		runner:   runner,
		timeouts: timeouts.withDefaults(),
		logger:   logger.With().Str("component", "probe").Logger(),
	}
}

// Ping reports whether the host answers a single ICMP echo.
func (p *Prober) Ping(ctx context.Context, host string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Ping)
	defer cancel()

	_, err := p.runner.Run(ctx, "ping", "-c", "1", "-W", "2", host)
	if err != nil {
		p.logger.Debug().Str("host", host).Err(err).Msg("ping failed")
		return false
	}
	return true
}

// CheckMounts re-runs the host's fstab verbosely and reports every mount it
// prints. A line containing "already mounted" means the mount was healthy
// before the probe; anything else was attached just now.
func (p *Prober) CheckMounts(ctx context.Context, host string) ([]MountEntry, error) {
	output, err := p.run(ctx, p.timeouts.Mounts, host, "mount -av")
	if err != nil {
		return nil, fmt.Errorf("check mounts on %s: %w", host, wrapOutput(err, output))
	}
	return ParseMountOutput(output), nil
}

// VerifySoftware reports whether the software path under the mount resolves
// on the host.
func (p *Prober) VerifySoftware(ctx context.Context, host, mountPoint, name string) (bool, error) {
	return p.testPath(ctx, host, "-e", path.Join(mountPoint, name))
}

// DirectoryExists reports whether the path is a directory on the host. It
// separates a mount that fell out of the mount table from a mount point that
// was never created.
func (p *Prober) DirectoryExists(ctx context.Context, host, dir string) (bool, error) {
	return p.testPath(ctx, host, "-d", dir)
}

func (p *Prober) testPath(ctx context.Context, host, flag, target string) (bool, error) {
	command := fmt.Sprintf(`test %s %s && echo "OK" || echo "MISSING"`, flag, target)
	output, err := p.run(ctx, p.timeouts.Software, host, command)
	if err != nil {
		return false, fmt.Errorf("test %s on %s: %w", target, host, wrapOutput(err, output))
	}
	return strings.Contains(string(output), "OK"), nil
}

// Remount asks the host to re-run its fstab. The returned message is recorded
// on the check row whether the attempt worked or not.
func (p *Prober) Remount(ctx context.Context, host string) (string, error) {
	output, err := p.run(ctx, p.timeouts.Remount, host, "sudo mount -a")
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			msg = err.Error()
		}
		p.logger.Warn().Str("host", host).Str("output", msg).Msg("remount failed")
		return msg, fmt.Errorf("remount on %s: %w", host, err)
	}
	p.logger.Info().Str("host", host).Msg("remount succeeded")
	return "Remount successful", nil
}

// ActiveUsers returns the number of login sessions on the host and the
// distinct usernames behind them. A host that cannot be asked counts as zero
// users.
func (p *Prober) ActiveUsers(ctx context.Context, host string) (int, []string) {
	output, err := p.run(ctx, p.timeouts.Users, host, "who")
	if err != nil {
		p.logger.Debug().Str("host", host).Err(err).Msg("user query failed")
		return 0, nil
	}
	return ParseWhoOutput(output)
}

// run executes a remote command under its own deadline and normalizes a
// deadline miss to ErrTimeout.
func (p *Prober) run(ctx context.Context, timeout time.Duration, host, command string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(sshOptions)+2)
	args = append(args, sshOptions...)
	args = append(args, host, command)

	output, err := p.runner.Run(ctx, "ssh", args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return output, err
}

// ParseMountOutput extracts mount entries from mount -av output. Only lines
// that look like mount reports count: they mention a remote source (":") or a
// local device ("/dev") and carry at least a device, a separator, and a
// mount point.
func ParseMountOutput(output []byte) []MountEntry {
	var entries []MountEntry
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.Contains(line, ":") && !strings.Contains(line, "/dev") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		status := models.MountStatusNewlyMounted
		if strings.Contains(strings.ToLower(line), "already mounted") {
			status = models.MountStatusMounted
		}
		entries = append(entries, MountEntry{
			Device:     fields[0],
			MountPoint: fields[2],
			Status:     status,
		})
	}
	return entries
}

// ParseWhoOutput counts login sessions and collects the distinct usernames in
// first-seen order.
func ParseWhoOutput(output []byte) (int, []string) {
	var (
		count int
		users []string
	)
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		count++
		name := fields[0]
		if seen[name] {
			continue
		}
		seen[name] = true
		users = append(users, name)
	}
	return count, users
}

// wrapOutput folds trimmed command output into the error so the failure
// reason reported by the remote side survives into check records.
func wrapOutput(err error, output []byte) error {
	msg := strings.TrimSpace(string(output))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
