package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sagarc03/cellar"
)

// Formatter formats command results for output.
type Formatter interface {
	FormatRecord(w io.Writer, rec *cellar.Record) error
	FormatList(w io.Writer, ns string, result cellar.ListResult) error
	FormatRemoved(w io.Writer, results []removeResult) error
	FormatLines(w io.Writer, key string, lines []string) error
	FormatError(w io.Writer, err error) error
}

// removeResult is the outcome of removing a single record.
type removeResult struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Removed   bool   `json:"removed"`
	Err       error  `json:"-"`
}

func newFormatter() Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
}

func (f *HumanFormatter) FormatRecord(w io.Writer, rec *cellar.Record) error {
	if f.Quiet {
		_, _ = fmt.Fprintln(w, rec.ID)
		return nil
	}

	_, _ = fmt.Fprintf(w, "ID:      %s\n", rec.ID)
	_, _ = fmt.Fprintf(w, "Name:    %s\n", rec.Name())
	_, _ = fmt.Fprintf(w, "Dir:     %s\n", rec.Dir())
	_, _ = fmt.Fprintf(w, "Type:    %s\n", rec.Type())
	if !rec.IsDirectory() {
		_, _ = fmt.Fprintf(w, "Size:    %s\n", formatSize(rec.Size))
		_, _ = fmt.Fprintf(w, "ETag:    %s\n", rec.ETag)
	}
	_, _ = fmt.Fprintf(w, "Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))

	extra := extraFields(rec)
	if len(extra) > 0 {
		_, _ = fmt.Fprintln(w, "Fields:")
		for _, k := range extra {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, formatValue(rec.Meta[k]))
		}
	}
	return nil
}

func (f *HumanFormatter) FormatList(w io.Writer, ns string, result cellar.ListResult) error {
	if len(result.Data) == 0 {
		_, _ = fmt.Fprintf(w, "No records in %s\n", ns)
		return nil
	}

	maxNameLen := 4 // "NAME"
	for _, rec := range result.Data {
		if n := len(rec.Name()); n > maxNameLen {
			maxNameLen = n
		}
	}
	if maxNameLen > 40 {
		maxNameLen = 40
	}

	_, _ = fmt.Fprintf(w, "%-36s  %-*s  %10s  %s\n", "ID", maxNameLen, "NAME", "SIZE", "TYPE")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n", strings.Repeat("-", 36), strings.Repeat("-", maxNameLen), strings.Repeat("-", 10), strings.Repeat("-", 20))

	for _, rec := range result.Data {
		name := rec.Name()
		if len(name) > maxNameLen {
			name = name[:maxNameLen-3] + "..."
		}
		size := formatSize(rec.Size)
		if rec.IsDirectory() {
			size = "-"
		}
		_, _ = fmt.Fprintf(w, "%-36s  %-*s  %10s  %s\n", rec.ID, maxNameLen, name, size, rec.Type())
	}

	if !f.Quiet {
		_, _ = fmt.Fprintf(w, "\n%d-%d of %d record(s)\n", result.Skip+1, result.Skip+len(result.Data), result.Total)
		if next := result.Skip + len(result.Data); next < result.Total {
			_, _ = fmt.Fprintf(w, "Next page: use --skip %d\n", next)
		}
	}
	return nil
}

func (f *HumanFormatter) FormatRemoved(w io.Writer, results []removeResult) error {
	for _, r := range results {
		switch {
		case r.Err != nil:
			_, _ = fmt.Fprintf(w, "Error: %s/%s - %v\n", r.Namespace, r.ID, r.Err)
		case !r.Removed:
			_, _ = fmt.Fprintf(w, "Not found: %s/%s\n", r.Namespace, r.ID)
		case !f.Quiet:
			_, _ = fmt.Fprintf(w, "Removed: %s/%s\n", r.Namespace, r.ID)
		}
	}
	return nil
}

func (f *HumanFormatter) FormatLines(w io.Writer, _ string, lines []string) error {
	for _, l := range lines {
		_, _ = fmt.Fprintln(w, l)
	}
	return nil
}

func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) FormatRecord(w io.Writer, rec *cellar.Record) error {
	return writeJSON(w, rec)
}

func (f *JSONFormatter) FormatList(w io.Writer, _ string, result cellar.ListResult) error {
	return writeJSON(w, result)
}

func (f *JSONFormatter) FormatRemoved(w io.Writer, results []removeResult) error {
	type jsonResult struct {
		removeResult
		Error string `json:"error,omitempty"`
	}

	output := struct {
		Results []jsonResult `json:"results"`
	}{
		Results: make([]jsonResult, len(results)),
	}
	for i, r := range results {
		jr := jsonResult{removeResult: r}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		output.Results[i] = jr
	}

	return writeJSON(w, output)
}

func (f *JSONFormatter) FormatLines(w io.Writer, key string, lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	return writeJSON(w, map[string][]string{key: lines})
}

func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// extraFields returns the metadata keys beyond the file fields, sorted.
func extraFields(rec *cellar.Record) []string {
	var keys []string
	for k := range rec.Meta {
		switch k {
		case cellar.FieldName, cellar.FieldDir, cellar.FieldType:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// maskSecret hides a secret entirely, reporting only whether it is set.
func maskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "********"
}
