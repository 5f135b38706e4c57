package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var rmCmd = &cobra.Command{
	Use:     "rm [flags] <namespace> [id1] [id2] ...",
	Aliases: []string{"remove"},
	Short:   "Remove records",
	Long: `Remove records from a namespace. Content is deleted right away; any
content that could not be deleted is left for 'cellar cleanup'.

Removed ids stay reserved and are never reused.

Examples:
  # Remove two records
  cellar rm files 3f0c... 9a41...

  # Remove every record in a namespace
  cellar rm --all scratch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var rmAll bool

func init() {
	rmCmd.Flags().BoolVar(&rmAll, "all", false, "remove every record in the namespace")
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ns, ids := args[0], args[1:]

	if rmAll == (len(ids) > 0) {
		return errors.New("pass record ids or --all, not both")
	}

	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.model(ns)
	if err != nil {
		return err
	}

	var results []removeResult
	if rmAll {
		results, err = removeAll(ctx, m)
	} else {
		results = removeIDs(ctx, m, ids)
	}

	if fmtErr := newFormatter().FormatRemoved(cmd.OutOrStdout(), results); fmtErr != nil {
		return fmtErr
	}
	if err != nil {
		return err
	}

	removed, notFound := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			return fmt.Errorf("remove %s/%s: %w", r.Namespace, r.ID, r.Err)
		case r.Removed:
			removed++
		default:
			notFound++
		}
	}

	slog.Debug("remove complete", "removed", removed, "not_found", notFound)
	return nil
}

func removeIDs(ctx context.Context, m *cellar.Model, ids []string) []removeResult {
	results := make([]removeResult, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Remove(ctx, id)
		results = append(results, removeResult{
			Namespace: m.Namespace(),
			ID:        id,
			Removed:   rec != nil,
			Err:       err,
		})
	}
	return results
}

// removeAll removes records page by page. Removed records drop out of the
// listing, so every page is read from the start.
func removeAll(ctx context.Context, m *cellar.Model) ([]removeResult, error) {
	var results []removeResult
	for {
		page, err := m.List(ctx, cellar.ListQuery{Limit: cellar.DefaultMaxListLimit})
		if err != nil {
			return results, fmt.Errorf("list %s: %w", m.Namespace(), err)
		}
		if len(page.Data) == 0 {
			return results, nil
		}

		ids := make([]string, len(page.Data))
		for i, rec := range page.Data {
			ids[i] = rec.ID
		}

		batch := removeIDs(ctx, m, ids)
		results = append(results, batch...)
		for _, r := range batch {
			if r.Err != nil {
				return results, nil
			}
		}
	}
}
