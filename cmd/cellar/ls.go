package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var lsCmd = &cobra.Command{
	Use:     "ls [flags] [namespace]",
	Aliases: []string{"list"},
	Short:   "List records",
	Long: `List the records of a namespace in creation order. Without a namespace,
list the configured namespaces.

Examples:
  cellar ls
  cellar ls files --limit 50 --skip 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var (
	lsLimit int
	lsSkip  int
)

func init() {
	lsCmd.Flags().IntVarP(&lsLimit, "limit", "l", 0, "page size (default: list.default_limit)")
	lsCmd.Flags().IntVarP(&lsSkip, "skip", "s", 0, "records to skip")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := newFormatter()
	if len(args) == 0 {
		return out.FormatLines(cmd.OutOrStdout(), "namespaces", a.namespaces())
	}

	m, err := a.model(args[0])
	if err != nil {
		return err
	}

	result, err := m.List(cmd.Context(), cellar.ListQuery{Limit: lsLimit, Skip: lsSkip})
	if err != nil {
		return err
	}

	return out.FormatList(cmd.OutOrStdout(), args[0], result)
}
