package daemonctl_test

import (
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"pixelpath/internal/daemonctl"
	"pixelpath/internal/testsupport"
)

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithShortSocket())
	_, err := daemonctl.StopAndTerminate(cfg.SocketPath(), cfg, time.Second, true)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForShutdownWhenSocketMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithShortSocket())
	if err := daemonctl.WaitForShutdown(cfg.SocketPath(), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestWaitForClientTimesOut(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithShortSocket())
	if _, err := daemonctl.WaitForClient(cfg.SocketPath(), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestIsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithShortSocket())
	_, err := net.Dial("unix", filepath.Join(cfg.Paths.StateDir, "absent.sock"))
	if !daemonctl.IsUnavailable(err) {
		t.Fatalf("expected missing socket to be unavailable: %v", err)
	}
	if !daemonctl.IsUnavailable(syscall.ECONNREFUSED) {
		t.Fatal("expected ECONNREFUSED to be unavailable")
	}
	if daemonctl.IsUnavailable(errors.New("permission denied")) {
		t.Fatal("unexpected unavailable for generic error")
	}
}

func TestForceKillProcessUsesPIDFile(t *testing.T) {
	sleeper := exec.Command("sleep", "30")
	if err := sleeper.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	t.Cleanup(func() { _ = sleeper.Process.Kill() })

	pidPath := filepath.Join(t.TempDir(), "pixelpath.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(sleeper.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := daemonctl.ForceKillProcess(pidPath, 0)
	if err != nil {
		t.Fatalf("ForceKillProcess: %v", err)
	}
	if pid != sleeper.Process.Pid {
		t.Fatalf("killed pid %d, want %d", pid, sleeper.Process.Pid)
	}
	_ = sleeper.Wait()
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "pixelpath.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
}
