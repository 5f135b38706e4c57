package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var patchCmd = &cobra.Command{
	Use:   "patch [flags] <namespace> <id>",
	Short: "Update a record",
	Long: `Update fields of a record, and optionally replace its content.

Fields not given keep their stored values.

Examples:
  # Rename
  cellar patch files 3f0c... --field name=final.pdf

  # Replace the content
  cellar patch files 3f0c... --data final.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runPatch,
}

var (
	patchFields []string
	patchData   string
)

func init() {
	patchCmd.Flags().StringArrayVarP(&patchFields, "field", "f", nil, "field as key=value, repeatable")
	patchCmd.Flags().StringVar(&patchData, "data", "", "file whose bytes replace the content (- for stdin)")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	ns, id := args[0], args[1]

	fields, err := parseFields(patchFields)
	if err != nil {
		return err
	}
	if _, ok := fields[cellar.FieldData]; ok {
		return errors.New("use --data to replace content")
	}
	if len(fields) == 0 && patchData == "" {
		return errors.New("nothing to patch: pass --field or --data")
	}

	switch patchData {
	case "":
	case "-":
		fields[cellar.FieldData] = cmd.InOrStdin()
	default:
		f, openErr := os.Open(patchData)
		if openErr != nil {
			return openErr
		}
		defer func() { _ = f.Close() }()
		fields[cellar.FieldData] = f
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

	rec, err := m.Patch(cmd.Context(), id, fields)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s/%s: %w", ns, id, cellar.ErrNotFound)
	}

	return newFormatter().FormatRecord(cmd.OutOrStdout(), rec)
}
