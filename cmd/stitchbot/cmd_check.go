package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/stitchbot/internal/deps"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and external binaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		cfgErr := cfg.Validate()
		if cfgErr != nil {
			fmt.Printf("Config %s: %v\n", cfgPath, cfgErr)
		} else {
			fmt.Printf("Config %s: ok\n", cfgPath)
		}

		statuses := deps.CheckBinaries(deps.MediaRequirements(cfg.Merge.FFmpegPath, cfg.Merge.FFprobePath))
		rows := make([][]string, 0, len(statuses))
		for _, s := range statuses {
			state := "ok"
			detail := s.Command
			if !s.Available {
				state = "missing"
				detail = s.Detail
			}
			rows = append(rows, []string{s.Name, s.Description, state, detail})
		}
		fmt.Println(renderTable([]string{"BINARY", "USED FOR", "STATUS", "DETAIL"}, rows, nil))

		if cfgErr != nil {
			return fmt.Errorf("configuration is not usable")
		}
		return nil
	},
}
