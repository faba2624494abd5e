package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// frameRow is one decoded frame, shaped for all three output formats.
type frameRow struct {
	Seq           int64          `json:"seq" yaml:"seq"`
	Direction     string         `json:"direction,omitempty" yaml:"direction,omitempty"`
	CorrelationID uint32         `json:"correlation_id" yaml:"correlation_id"`
	Kind          string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Size          int            `json:"size" yaml:"size"`
	Observed      *time.Time     `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
	Body          map[string]any `json:"body,omitempty" yaml:"body,omitempty"`
}

// payloadFields flattens a payload struct to a generic map so the row
// renders identically in JSON and YAML.
func payloadFields(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// encodeAs writes v as indented JSON or YAML.
func encodeAs(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want table, json, or yaml)", format)
	}
}

func writeFrameRows(w io.Writer, format string, rows []frameRow) error {
	switch format {
	case "json", "yaml":
		return encodeAs(w, format, rows)
	case "table":
		width := tableWidth()
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "SEQ\tDIR\tID\tKIND\tSIZE\tBODY\n")
		for _, r := range rows {
			kind := r.Kind
			if kind == "" {
				kind = "?"
			}
			body := ""
			if r.Body != nil {
				compact, err := json.Marshal(r.Body)
				if err == nil {
					body = string(compact)
				}
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\n",
				r.Seq, r.Direction, r.CorrelationID, kind, r.Size, truncate(body, width/2))
		}
		return tw.Flush()
	default:
		return encodeAs(w, format, rows)
	}
}

// tableWidth returns the terminal width, or a generous default when
// stdout is not a terminal.
func tableWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 160
	}
	return w
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
