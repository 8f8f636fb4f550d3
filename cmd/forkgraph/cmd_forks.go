package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/forkgraph/internal/types"
)

var readAll bool

func init() {
	readCmd.Flags().BoolVar(&readAll, "all", false, "mark every fork as read")
	rootCmd.AddCommand(forksCmd, readCmd, eventsCmd)
}

var forksCmd = &cobra.Command{
	Use:   "forks",
	Short: "List forks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		forks, err := store.ListForks()
		if err != nil {
			return err
		}
		if len(forks) == 0 {
			fmt.Println("No forks found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tREAD\tEVENTS\tCREATED")
		for _, e := range forks {
			forkID := e.GetString("fork_id")
			count, err := store.CountEventsForFork(types.ForkID(forkID))
			if err != nil {
				return err
			}
			read := "no"
			if e.GetBool("read") {
				read = "yes"
			}
			created := e.GetString("created_at")
			if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
				created = t.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				forkID, e.GetString("name"), e.GetString("status"), read, count, created)
		}
		return w.Flush()
	},
}

var readCmd = &cobra.Command{
	Use:   "read [fork-id]",
	Short: "Mark a fork (or every fork) as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if readAll {
			n, err := store.MarkAllForksRead()
			if err != nil {
				return err
			}
			fmt.Printf("Marked %d fork(s) as read.\n", n)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("either --all or a fork id is required")
		}
		if err := store.MarkForkRead(types.ForkID(args[0])); err != nil {
			return err
		}
		fmt.Printf("Marked fork %s as read.\n", args[0])
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <fork-id>",
	Short: "Show stored events for a fork",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.QueryEvents("", types.ForkID(args[0]), 0)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Printf("No events found for fork %s.\n", args[0])
			return nil
		}

		for _, e := range events {
			line := e.GetString("text")
			if line == "" {
				line = e.GetString("result")
			}
			line = strings.ReplaceAll(line, "\n", " ")
			if len(line) > 80 {
				line = line[:77] + "..."
			}
			fmt.Printf("[%d] %-12s %s\n", e.ID, e.GetString("type"), line)
		}
		return nil
	},
}
