package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar"
)

var putCmd = &cobra.Command{
	Use:   "put [flags] <namespace> <file1|-> [file2] ...",
	Short: "Store files as new records",
	Long: `Store local files as new records in a namespace.

Each file becomes one record. The record name defaults to the file name and
the type is detected from the content, falling back to the file extension
or --type. Use - to read a single payload from stdin.

Examples:
  # Store a file
  cellar put files report.pdf

  # Store into a directory with extra fields
  cellar put files --dir /reports --field owner=alice --field tags='["q3"]' report.pdf

  # Store a directory tree, keeping relative directories
  cellar put files -r --dir /assets ./public

  # Store stdin under an explicit name
  cat notes.txt | cellar put files --name notes.txt -`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPut,
}

var (
	putName      string
	putDir       string
	putType      string
	putFields    []string
	putRecursive bool
)

func init() {
	putCmd.Flags().StringVar(&putName, "name", "", "record name (single file only)")
	putCmd.Flags().StringVarP(&putDir, "dir", "d", "/", "record directory")
	putCmd.Flags().StringVarP(&putType, "type", "t", "", "declared content type")
	putCmd.Flags().StringArrayVarP(&putFields, "field", "f", nil, "extra field as key=value, repeatable")
	putCmd.Flags().BoolVarP(&putRecursive, "recursive", "r", false, "recursively store directories")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	ns, paths := args[0], args[1:]

	fields, err := parseFields(putFields)
	if err != nil {
		return err
	}

	var files []fileEntry
	for _, p := range paths {
		if p == "-" {
			files = append(files, fileEntry{sourcePath: "-", dir: normalizeDir(putDir)})
			continue
		}
		entries, collectErr := collectFiles(p, putRecursive, putDir)
		if collectErr != nil {
			return fmt.Errorf("collect files from %s: %w", p, collectErr)
		}
		files = append(files, entries...)
	}

	if putName != "" && len(files) != 1 {
		return errors.New("--name requires exactly one file")
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

	out := newFormatter()
	for _, f := range files {
		in := cellar.Input{
			Name:   f.name,
			Dir:    f.dir,
			Type:   putType,
			Fields: fields,
		}
		if putName != "" {
			in.Name = putName
		}
		if in.Type == "" && f.sourcePath != "-" {
			in.Type = detectContentType(f.sourcePath)
		}

		rec, createErr := createFrom(cmd, m, f.sourcePath, in)
		if createErr != nil {
			return fmt.Errorf("put %s: %w", f.sourcePath, createErr)
		}

		slog.Debug("stored", "namespace", ns, "id", rec.ID, "source", f.sourcePath)
		if err := out.FormatRecord(cmd.OutOrStdout(), rec); err != nil {
			return err
		}
	}

	return nil
}

func createFrom(cmd *cobra.Command, m *cellar.Model, source string, in cellar.Input) (*cellar.Record, error) {
	var r io.Reader
	if source == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	in.Data = r
	return m.Create(cmd.Context(), in)
}
