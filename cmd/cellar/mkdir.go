package main

import (
	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [flags] <namespace> <name>",
	Short: "Create a directory record",
	Long: `Create a directory record. Directories carry metadata only, never
content.

Examples:
  cellar mkdir files reports
  cellar mkdir files --dir /reports 2024`,
	Args: cobra.ExactArgs(2),
	RunE: runMkdir,
}

var (
	mkdirDir    string
	mkdirFields []string
)

func init() {
	mkdirCmd.Flags().StringVarP(&mkdirDir, "dir", "d", "/", "parent directory")
	mkdirCmd.Flags().StringArrayVarP(&mkdirFields, "field", "f", nil, "extra field as key=value, repeatable")
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	fields, err := parseFields(mkdirFields)
	if err != nil {
		return err
	}

	a, err := appFromCommand(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.model(args[0])
	if err != nil {
		return err
	}

	rec, err := m.Create(cmd.Context(), cellar.Input{
		Name:   args[1],
		Dir:    normalizeDir(mkdirDir),
		Type:   cellar.DirectoryType,
		Fields: fields,
	})
	if err != nil {
		return err
	}

	return newFormatter().FormatRecord(cmd.OutOrStdout(), rec)
}
