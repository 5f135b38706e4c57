package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var idCmd = &cobra.Command{
	Use:         "id",
	Short:       "Print fresh record identifiers",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runID,
}

var idCount int

func init() {
	idCmd.Flags().IntVarP(&idCount, "count", "n", 1, "number of identifiers")
	rootCmd.AddCommand(idCmd)
}

func runID(cmd *cobra.Command, _ []string) error {
	var gen cellar.IDGenerator = cellar.UUIDGenerator{}

	ids := make([]string, 0, idCount)
	for range idCount {
		ids = append(ids, gen.NewID())
	}
	return newFormatter().FormatLines(cmd.OutOrStdout(), "ids", ids)
}
