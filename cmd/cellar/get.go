package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <namespace> <id>",
	Short: "Show a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var catCmd = &cobra.Command{
	Use:   "cat [flags] <namespace> <id>",
	Short: "Write a record's content",
	Long: `Write the content of a record to stdout, or to a file with --output.

Examples:
  cellar cat files 3f0c... > report.pdf
  cellar cat files 3f0c... -o report.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runCat,
}

var catOutput string

func init() {
	catCmd.Flags().StringVarP(&catOutput, "output", "o", "", "write content to this file instead of stdout")
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(catCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.get(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	return newFormatter().FormatRecord(cmd.OutOrStdout(), rec)
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.get(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if rec.Data == nil {
		return fmt.Errorf("%s/%s has no content", args[0], args[1])
	}

	rc, err := rec.Data.Open(ctx)
	if err != nil {
		return fmt.Errorf("open content: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var w io.Writer = cmd.OutOrStdout()
	if catOutput != "" {
		f, createErr := os.Create(catOutput)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", catOutput, createErr)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if _, err := io.Copy(w, rc); err != nil {
		if catOutput != "" {
			_ = os.Remove(catOutput)
		}
		return fmt.Errorf("copy content: %w", err)
	}

	return nil
}
