package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete leftover content of removed records",
	Long: `Delete content whose removal did not complete.

Removing a record deletes its content right away. If that fails the record
stays pending, and this command retries it:
  1. Deletes the content from the blob backend
  2. Marks the record as cleaned up

Run this periodically, or use 'cellar serve --purge-interval'.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var cleanupBatch int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupBatch, "batch", 100, "records to process per batch")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	slog.Info("starting cleanup", "batch", cleanupBatch)

	cleaned, err := a.store.Purge(cmd.Context(), cleanupBatch)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	slog.Info("cleanup complete", "records_cleaned", cleaned)
	return nil
}
