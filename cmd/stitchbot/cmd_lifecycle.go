package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

const (
	pidFileName  = "stitchbot.pid"
	lockFileName = "stitchbot.lock"
)

var (
	errNoDaemon      = errors.New("no running daemon")
	errDaemonRunning = errors.New("the daemon is running; stop it first with `stitchbot stop`")
)

var stopWait time.Duration

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
	stopCmd.Flags().DurationVar(&stopWait, "wait", 0, "wait up to this long for the daemon to exit")
}

// instanceLock is held by serve for its whole lifetime, so holding it is the
// authoritative sign of a live daemon. The PID file only says which one.
func instanceLock(tempDir string) *flock.Flock {
	return flock.New(filepath.Join(tempDir, lockFileName))
}

// isDaemonRunning reports whether another process holds the instance lock.
func isDaemonRunning(tempDir string) bool {
	lock := instanceLock(tempDir)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		lock.Unlock()
		return false
	}
	return true
}

// withDaemonStopped runs fn while holding the instance lock, so a daemon can
// neither be running nor start until fn returns.
func withDaemonStopped(tempDir string, fn func() error) error {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	lock := instanceLock(tempDir)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("check instance lock: %w", err)
	}
	if !ok {
		return errDaemonRunning
	}
	defer lock.Unlock()
	return fn()
}

type daemon struct {
	pid  int
	proc *os.Process
}

// findDaemon locates the running daemon through its lock and PID file.
func findDaemon(tempDir string) (*daemon, error) {
	if !isDaemonRunning(tempDir) {
		return nil, errNoDaemon
	}
	data, err := os.ReadFile(filepath.Join(tempDir, pidFileName))
	if err != nil {
		return nil, fmt.Errorf("daemon holds the lock but its PID file is unreadable: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	return &daemon{pid: pid, proc: proc}, nil
}

func (d *daemon) signal(sig syscall.Signal) error {
	if err := d.proc.Signal(sig); err != nil {
		return fmt.Errorf("send %s to %d: %w", sig, d.pid, err)
	}
	return nil
}

// waitForExit polls until the instance lock is released or timeout passes.
func waitForExit(tempDir string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for isDaemonRunning(tempDir) {
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
	return true
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := findDaemon(loadConfig().TempDir)
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon is running (PID %d).\n", d.pid)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tempDir := loadConfig().TempDir
		d, err := findDaemon(tempDir)
		if err != nil {
			return err
		}
		if err := d.signal(syscall.SIGTERM); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to daemon (PID %d).\n", d.pid)

		if stopWait > 0 {
			if !waitForExit(tempDir, stopWait) {
				return fmt.Errorf("daemon (PID %d) still running after %s", d.pid, stopWait)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := findDaemon(loadConfig().TempDir)
		if err != nil {
			return err
		}
		if err := d.signal(syscall.SIGHUP); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGHUP to daemon (PID %d) for restart.\n", d.pid)
		return nil
	},
}
