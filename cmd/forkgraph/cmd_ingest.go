package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/forkgraph/internal/ingest"
	"github.com/user/forkgraph/internal/types"
)

var ingestFile string

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "read events from file instead of stdin")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <fork-id>",
	Short: "Ingest newline-delimited agent events into the graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		in := os.Stdin
		if ingestFile != "" {
			f, err := os.Open(ingestFile)
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			defer f.Close()
			in = f
		}

		ing := &ingest.Ingestor{Sink: store}
		res, err := ing.Reader(in, types.ForkID(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("Stored %d event(s), %d error(s).\n", res.Stored, res.Errors)
		return nil
	},
}
