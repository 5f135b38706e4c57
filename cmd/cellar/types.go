package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var typesCmd = &cobra.Command{
	Use:         "types",
	Short:       "List the field types models can use",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return newFormatter().FormatLines(cmd.OutOrStdout(), "types", cellar.NewRegistry().Names())
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
