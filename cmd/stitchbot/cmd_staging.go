package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/user/stitchbot/internal/state"
	"github.com/user/stitchbot/internal/types"
)

var stagingOlderThan time.Duration

func init() {
	rootCmd.AddCommand(stagingCmd)
	stagingCmd.AddCommand(stagingListCmd, stagingClearCmd, stagingCleanCmd)
	stagingCleanCmd.Flags().DurationVar(&stagingOlderThan, "older-than", 24*time.Hour, "remove directories untouched for this long")
}

var stagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Inspect and clean per-user staging directories",
}

func openStaging() *state.MediaStore {
	cfg := loadConfig()
	return state.NewMediaStore(afero.NewOsFs(), cfg.TempDir)
}

var stagingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staging directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := openStaging().List()
		if err != nil {
			return fmt.Errorf("list staging: %w", err)
		}
		if len(dirs) == 0 {
			fmt.Println("No staging directories found.")
			return nil
		}

		sort.Slice(dirs, func(i, j int) bool {
			return dirs[i].ModTime.After(dirs[j].ModTime)
		})

		rows := make([][]string, 0, len(dirs))
		for _, d := range dirs {
			rows = append(rows, []string{
				d.UserID.String(),
				strconv.Itoa(d.Files),
				humanize.Bytes(uint64(d.Size)),
				humanize.Time(d.ModTime),
			})
		}
		fmt.Println(renderTable(
			[]string{"USER", "FILES", "SIZE", "LAST ACTIVITY"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

var stagingClearCmd = &cobra.Command{
	Use:   "clear <user-id>",
	Short: "Delete one user's staging directory (daemon must be stopped)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := types.ParseUserID(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %s", args[0])
		}
		if err := clearStaging(openStaging(), user); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Staging for user %s cleared.\n", user)
		return nil
	},
}

var stagingCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove staging directories untouched for --older-than (daemon must be stopped)",
	Long: "Remove staging directories untouched for --older-than. The running daemon sweeps\n" +
		"its own staging area on janitor.schedule, so this refuses to run while it holds the lock.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanStaging(cmd.OutOrStdout(), cmd.ErrOrStderr(), openStaging(), time.Now().Add(-stagingOlderThan))
	},
}

// clearStaging removes one user's directory. Files belong to the daemon's
// sessions while it runs, so the instance lock is taken first.
func clearStaging(store *state.MediaStore, user types.UserID) error {
	return withDaemonStopped(store.Root(), func() error {
		return store.Remove(user)
	})
}

// cleanStaging removes directories older than cutoff under the instance lock.
func cleanStaging(stdout, stderr io.Writer, store *state.MediaStore, cutoff time.Time) error {
	return withDaemonStopped(store.Root(), func() error {
		result := store.CleanStale(cutoff, nil)
		for _, p := range result.Removed {
			fmt.Fprintf(stdout, "Removed %s\n", p)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(stderr, "Failed to remove %s: %v\n", e.Path, e.Error)
		}
		fmt.Fprintf(stdout, "%d directories removed.\n", len(result.Removed))
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d directories could not be removed", len(result.Errors))
		}
		return nil
	})
}
