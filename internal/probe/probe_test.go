package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// fakeRunner returns canned output keyed by the last argument of the command,
// which is the host for ping and the remote command string for ssh.
type fakeRunner struct {
	output map[string]string
	errs   map[string]error
	calls  [][]string
	block  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	key := name
	if len(args) > 0 {
		key = args[len(args)-1]
	}
	return []byte(f.output[key]), f.errs[key]
}

func testProber(r Runner) *Prober {
	return NewWithRunner(r, DefaultTimeouts(), zerolog.Nop())
}

func TestParseMountOutput(t *testing.T) {
	t.Run("nfs and device mounts", func(t *testing.T) {
		output := []byte(`nas01:/export/chem.sw on /usr/local/chem.sw type nfs (rw,relatime)
/dev/mapper/vg-root on /home type ext4 (rw)
proc on /proc type proc (rw)
nothing to report here
`)
		entries := ParseMountOutput(output)
		if len(entries) != 2 {
			t.Fatalf("entry count = %d, want 2", len(entries))
		}
		if entries[0].Device != "nas01:/export/chem.sw" {
			t.Errorf("Device = %q, want nas01:/export/chem.sw", entries[0].Device)
		}
		if entries[0].MountPoint != "/usr/local/chem.sw" {
			t.Errorf("MountPoint = %q, want /usr/local/chem.sw", entries[0].MountPoint)
		}
		if entries[0].Status != models.MountStatusNewlyMounted {
			t.Errorf("Status = %q, want newly_mounted", entries[0].Status)
		}
		if entries[1].MountPoint != "/home" {
			t.Errorf("MountPoint = %q, want /home", entries[1].MountPoint)
		}
	})

	t.Run("already mounted is case-insensitive", func(t *testing.T) {
		output := []byte("nas01:/export/data on /mnt/data type nfs (rw) Already Mounted\n")
		entries := ParseMountOutput(output)
		if len(entries) != 1 {
			t.Fatalf("entry count = %d, want 1", len(entries))
		}
		if entries[0].Status != models.MountStatusMounted {
			t.Errorf("Status = %q, want mounted", entries[0].Status)
		}
	})

	t.Run("short lines are skipped", func(t *testing.T) {
		entries := ParseMountOutput([]byte("/dev/sda1 /boot\n"))
		if len(entries) != 0 {
			t.Errorf("entry count = %d, want 0", len(entries))
		}
	})

	t.Run("empty output", func(t *testing.T) {
		if entries := ParseMountOutput(nil); len(entries) != 0 {
			t.Errorf("entry count = %d, want 0", len(entries))
		}
	})
}

func TestParseWhoOutput(t *testing.T) {
	output := []byte(`alice pts/0 2025-06-10 09:00 (10.0.0.5)
bob   pts/1 2025-06-10 09:05 (10.0.0.6)
alice pts/2 2025-06-10 10:12 (10.0.0.7)
`)
	count, users := ParseWhoOutput(output)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("users = %v, want [alice bob]", users)
	}

	count, users = ParseWhoOutput([]byte("\n"))
	if count != 0 || users != nil {
		t.Errorf("empty who output: count = %d users = %v, want 0 and nil", count, users)
	}
}

func TestPing(t *testing.T) {
	runner := &fakeRunner{}
	p := testProber(runner)

	if !p.Ping(context.Background(), "adam") {
		t.Error("ping should succeed when the command exits cleanly")
	}
	call := runner.calls[0]
	want := []string{"ping", "-c", "1", "-W", "2", "adam"}
	if len(call) != len(want) {
		t.Fatalf("ping args = %v, want %v", call, want)
	}
	for i := range want {
		if call[i] != want[i] {
			t.Fatalf("ping args = %v, want %v", call, want)
		}
	}

	runner.errs = map[string]error{"adam": errors.New("exit status 1")}
	if p.Ping(context.Background(), "adam") {
		t.Error("ping should fail when the command errors")
	}
}

func TestCheckMounts(t *testing.T) {
	runner := &fakeRunner{
		output: map[string]string{
			"mount -av": "nas01:/export/chem.sw on /usr/local/chem.sw type nfs (rw) already mounted\n",
		},
	}
	p := testProber(runner)

	entries, err := p.CheckMounts(context.Background(), "adam")
	if err != nil {
		t.Fatalf("CheckMounts: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if entries[0].Status != models.MountStatusMounted {
		t.Errorf("Status = %q, want mounted", entries[0].Status)
	}

	// The ssh invocation must carry the batch-mode options and target host.
	call := strings.Join(runner.calls[0], " ")
	for _, part := range []string{"ssh", "-o BatchMode=yes", "-o ConnectTimeout=10", "adam", "mount -av"} {
		if !strings.Contains(call, part) {
			t.Errorf("ssh invocation %q missing %q", call, part)
		}
	}
}

func TestCheckMountsCommandFailure(t *testing.T) {
	runner := &fakeRunner{
		output: map[string]string{"mount -av": "ssh: connect to host adam port 22: No route to host\n"},
		errs:   map[string]error{"mount -av": errors.New("exit status 255")},
	}
	p := testProber(runner)

	_, err := p.CheckMounts(context.Background(), "adam")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("command failure should not classify as timeout")
	}
	if !strings.Contains(err.Error(), "No route to host") {
		t.Errorf("error %q should carry the remote output", err)
	}
}

func TestCheckMountsTimeout(t *testing.T) {
	runner := &fakeRunner{block: true}
	p := NewWithRunner(runner, Timeouts{Mounts: 10 * time.Millisecond}, zerolog.Nop())

	_, err := p.CheckMounts(context.Background(), "adam")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestVerifySoftware(t *testing.T) {
	command := `test -e /usr/local/chem.sw/gaussian && echo "OK" || echo "MISSING"`

	t.Run("accessible", func(t *testing.T) {
		runner := &fakeRunner{output: map[string]string{command: "OK\n"}}
		p := testProber(runner)

		ok, err := p.VerifySoftware(context.Background(), "adam", "/usr/local/chem.sw", "gaussian")
		if err != nil {
			t.Fatalf("VerifySoftware: %v", err)
		}
		if !ok {
			t.Error("accessible = false, want true")
		}
		if len(runner.calls) != 1 {
			t.Fatalf("call count = %d, want 1", len(runner.calls))
		}
	})

	t.Run("missing", func(t *testing.T) {
		runner := &fakeRunner{output: map[string]string{command: "MISSING\n"}}
		p := testProber(runner)

		ok, err := p.VerifySoftware(context.Background(), "adam", "/usr/local/chem.sw", "gaussian")
		if err != nil {
			t.Fatalf("VerifySoftware: %v", err)
		}
		if ok {
			t.Error("accessible = true, want false")
		}
	})

	t.Run("ssh failure", func(t *testing.T) {
		runner := &fakeRunner{errs: map[string]error{command: errors.New("exit status 255")}}
		p := testProber(runner)

		if _, err := p.VerifySoftware(context.Background(), "adam", "/usr/local/chem.sw", "gaussian"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDirectoryExists(t *testing.T) {
	command := `test -d /usr/local/chem.sw && echo "OK" || echo "MISSING"`
	runner := &fakeRunner{output: map[string]string{command: "MISSING\n"}}
	p := testProber(runner)

	ok, err := p.DirectoryExists(context.Background(), "adam", "/usr/local/chem.sw")
	if err != nil {
		t.Fatalf("DirectoryExists: %v", err)
	}
	if ok {
		t.Error("exists = true, want false")
	}
}

func TestRemount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{}
		p := testProber(runner)

		msg, err := p.Remount(context.Background(), "adam")
		if err != nil {
			t.Fatalf("Remount: %v", err)
		}
		if msg != "Remount successful" {
			t.Errorf("msg = %q, want Remount successful", msg)
		}
	})

	t.Run("failure carries output", func(t *testing.T) {
		runner := &fakeRunner{
			output: map[string]string{"sudo mount -a": "mount.nfs: Connection timed out\n"},
			errs:   map[string]error{"sudo mount -a": errors.New("exit status 32")},
		}
		p := testProber(runner)

		msg, err := p.Remount(context.Background(), "adam")
		if err == nil {
			t.Fatal("expected error")
		}
		if msg != "mount.nfs: Connection timed out" {
			t.Errorf("msg = %q, want the remote error text", msg)
		}
	})
}

func TestActiveUsers(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{"who": "carol pts/0 2025-06-10 09:00\n"}}
	p := testProber(runner)

	count, users := p.ActiveUsers(context.Background(), "adam")
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if len(users) != 1 || users[0] != "carol" {
		t.Errorf("users = %v, want [carol]", users)
	}

	runner.errs = map[string]error{"who": errors.New("exit status 255")}
	count, users = p.ActiveUsers(context.Background(), "adam")
	if count != 0 || users != nil {
		t.Errorf("unreachable host: count = %d users = %v, want 0 and nil", count, users)
	}
}

func TestTimeoutDefaults(t *testing.T) {
	p := NewWithRunner(&fakeRunner{}, Timeouts{}, zerolog.Nop())
	if p.timeouts != DefaultTimeouts() {
		t.Errorf("timeouts = %+v, want defaults", p.timeouts)
	}

	p = NewWithRunner(&fakeRunner{}, Timeouts{Ping: time.Second}, zerolog.Nop())
	if p.timeouts.Ping != time.Second {
		t.Errorf("Ping timeout = %v, want 1s", p.timeouts.Ping)
	}
	if p.timeouts.Mounts != 30*time.Second {
		t.Errorf("Mounts timeout = %v, want default 30s", p.timeouts.Mounts)
	}
}
