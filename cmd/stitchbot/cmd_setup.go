package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/stitchbot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Stitchbot Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Telegram bot token
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (from @BotFather)", cfg.Telegram.Token)
		if cfg.Telegram.Token == "" || config.IsPlaceholderToken(cfg.Telegram.Token) {
			return fmt.Errorf("a real bot token is required")
		}

		// 2. Staging directory
		cfg.TempDir = prompt(scanner, "Staging directory", cfg.TempDir)

		// 3. Binaries for video merging
		cfg.Merge.FFmpegPath = prompt(scanner, "ffmpeg binary", cfg.Merge.FFmpegPath)
		cfg.Merge.FFprobePath = prompt(scanner, "ffprobe binary", cfg.Merge.FFprobePath)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		fmt.Println("Run `stitchbot check` to verify ffmpeg, then `stitchbot serve`.")
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
