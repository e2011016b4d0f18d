package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/user/stitchbot/internal/bot"
	"github.com/user/stitchbot/internal/config"
	"github.com/user/stitchbot/internal/deps"
	"github.com/user/stitchbot/internal/gateway"
	"github.com/user/stitchbot/internal/health"
	"github.com/user/stitchbot/internal/media"
	"github.com/user/stitchbot/internal/scheduler"
	"github.com/user/stitchbot/internal/state"
	"github.com/user/stitchbot/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stitchbot daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dir string) (string, error) {
	pidPath := filepath.Join(dir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	idleTTL, _ := cfg.IdleTTL()

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	// One poller per token: a second instance would fight over getUpdates.
	lock := instanceLock(cfg.TempDir)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return errors.New("another stitchbot instance is already running")
	}
	defer lock.Unlock()

	pidPath, err := writePIDFile(cfg.TempDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg.Merge.FFmpegPath, cfg.Merge.FFprobePath)) {
		if !status.Available {
			slog.Warn("video merging unavailable", "binary", status.Name, "detail", status.Detail)
		}
	}

	// Stores
	fs := afero.NewOsFs()
	sessions := state.NewRegistry()
	staging := state.NewMediaStore(fs, cfg.TempDir)
	journal := state.NewJournal(fs, filepath.Join(cfg.TempDir, ".journal"))

	engine := media.NewEngine(fs, media.Config{
		FFmpegPath:      cfg.Merge.FFmpegPath,
		FFprobePath:     cfg.Merge.FFprobePath,
		VideoCodec:      cfg.Merge.VideoCodec,
		AudioCodec:      cfg.Merge.AudioCodec,
		JPEGQuality:     cfg.Merge.JPEGQuality,
		MaxImagePixels:  cfg.Merge.MaxImagePixels,
		MaxCanvasPixels: cfg.Merge.MaxCanvasPixels,
	})

	// Gateway
	gw := gateway.New(int64(cfg.MaxConcurrent))

	adapter, err := telegram.New(cfg.Telegram.Token, gw, cfg.Telegram.PollTimeout)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	router := bot.NewRouter(sessions, staging, engine, adapter, adapter,
		bot.WithJournal(journal),
		bot.WithMergeTimeout(cfg.MergeTimeout()))
	gw.Queue.SetProcessor(router.Process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	janitor := scheduler.New(sessions, staging, gw, cfg.Janitor.Schedule, idleTTL)
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer janitor.Stop()

	go adapter.Start(ctx)

	if cfg.HTTP.Enabled {
		startHealthServer(ctx, cfg, sessions, staging, journal)
	}

	slog.Info("stitchbot started",
		"bot", adapter.Username(),
		"temp_dir", cfg.TempDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// The new image must be able to take the lock and write its PID.
			os.Remove(pidPath)
			lock.Unlock()
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, err := lock.TryLock(); err != nil {
					slog.Error("failed to re-acquire instance lock", "error", err)
				}
				if _, writeErr := writePIDFile(cfg.TempDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

func startHealthServer(ctx context.Context, cfg *config.Config, sessions *state.Registry, staging *state.MediaStore, journal *state.Journal) {
	var opts []health.Option
	if cfg.HTTP.DebugAPI {
		opts = append(opts, health.WithDebugAPI(sessions, staging, journal))
	}
	srv := health.NewServer(opts...)
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.HTTP.Listen); err != nil {
			slog.Error("health server error", "error", err)
		}
	}()
}
