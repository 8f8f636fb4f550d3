package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(doneCmd)
}

// doneCmd is run BY a fork as its final action. It appends a notification the
// parent session can pick up; the fork's own status is stamped by whoever
// launched it when the process exits.
var doneCmd = &cobra.Command{
	Use:   "done <fork-id> [summary...]",
	Short: "Signal that a fork finished its task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		forkID := args[0]
		summary := strings.Join(args[1:], " ")
		if summary == "" {
			summary = "Fork completed"
		}

		cfg := loadConfig()
		notifDir := filepath.Join(cfg.DataDir, "notifications")
		if err := os.MkdirAll(notifDir, 0755); err != nil {
			return fmt.Errorf("create notifications dir: %w", err)
		}

		notification := fmt.Sprintf("%s|%s|%s\n",
			forkID, time.Now().UTC().Format("2006-01-02 15:04:05"), summary)

		f, err := os.OpenFile(filepath.Join(notifDir, "pending.txt"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open notifications file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(notification); err != nil {
			return fmt.Errorf("write notification: %w", err)
		}

		fmt.Printf("Fork %s done.\n", forkID)
		if summary != "Fork completed" {
			fmt.Printf("  Summary: %s\n", summary)
		}
		return nil
	},
}
