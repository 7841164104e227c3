// Package report renders discovered primary keys as text, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"kairos-pkfinder/internal/pkfinder"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Result is the outcome for one table. PrimaryKey is nil when the table has none.
type Result struct {
	Schema     string               `json:"schema" yaml:"schema"`
	Table      string               `json:"table" yaml:"table"`
	PrimaryKey *pkfinder.PrimaryKey `json:"primary_key" yaml:"primary_key"`
}

// Report is the document written for one discovery run.
type Report struct {
	RunID   string   `json:"run_id" yaml:"run_id"`
	Results []Result `json:"tables" yaml:"tables"`
}

// Render writes the report to w in the given format.
func Render(w io.Writer, format string, r Report) error {
	switch format {
	case FormatText, "":
		return renderText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func renderText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCOLUMN\tTYPE\tKIND\tSEQUENCE")
	for _, res := range r.Results {
		name := pkfinder.TableRef{Schema: res.Schema, Table: res.Table}.String()
		if res.PrimaryKey == nil || len(res.PrimaryKey.Columns) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", name)
			continue
		}
		for _, col := range res.PrimaryKey.Columns {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				name, col.Name, col.Type, col.Kind, dashIfEmpty(col.SequenceName))
		}
	}
	return tw.Flush()
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
