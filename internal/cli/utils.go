// Package cli provides output formatting for the Mitsuke CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aisight/mitsuke/internal/models"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// WriteMemories writes visual prompt records to w in the given format,
// preserving the order given (callers pass most recent first).
func WriteMemories(w io.Writer, records []models.VisualPromptRecord, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d memor%s\n\n", len(records), plural(len(records), "y", "ies"))
	for _, r := range records {
		writeOneMemory(w, r)
	}
	return nil
}

func writeOneMemory(w io.Writer, r models.VisualPromptRecord) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s\n", r.ObjectName)
	fmt.Fprintf(w, "ID: %s | Class: %d | Created: %s\n", r.MemoryID, r.ClassID, r.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(r.BoundingBoxes) > 0 {
		b := r.BoundingBoxes[0]
		fmt.Fprintf(w, "Box: %dx%d at (%d, %d)\n", b.Width, b.Height, b.X, b.Y)
	}
	if r.Coordinates != nil {
		fmt.Fprintf(w, "Coordinates: (%.2f, %.2f, %.2f)\n", r.Coordinates.X, r.Coordinates.Y, r.Coordinates.Z)
	}
	fmt.Fprintln(w)
}

// WriteTerms writes the vocabulary listing to w in the given format.
func WriteTerms(w io.Writer, terms []string, base, dynamic, capacity int, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"terms":    terms,
			"base":     base,
			"dynamic":  dynamic,
			"capacity": capacity,
		})
	}
	fmt.Fprintf(w, "%d terms (%d base, %d dynamic, capacity %d)\n", len(terms), base, dynamic, capacity)
	if len(terms) > 0 {
		fmt.Fprintln(w, strings.Join(terms, ", "))
	}
	return nil
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}
