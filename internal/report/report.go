// Package report renders an aggregation result for people and for other
// programs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"limlog/internal/model"
)

const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// Document is the serialized form of one run.
type Document struct {
	RunID   string      `json:"run_id,omitempty" yaml:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Source  string      `json:"source,omitempty" yaml:"source,omitempty" msgpack:"source,omitempty"`
	Stats   model.Stats `json:"stats" yaml:"stats" msgpack:"stats"`
	Signals []model.Row `json:"signals" yaml:"signals" msgpack:"signals"`
}

func NewDocument(run model.Run) Document {
	return Document{
		RunID:   run.ID,
		Source:  run.Source,
		Stats:   run.Stats,
		Signals: run.Result.Rows(),
	}
}

// ContentType returns the media type of a format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatMsgpack:
		return "application/msgpack"
	}
	return "text/plain; charset=utf-8"
}

func Render(w io.Writer, format string, doc Document) error {
	switch strings.ToLower(format) {
	case "", FormatTable:
		return renderTable(w, doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(doc)
	}
	return fmt.Errorf("unsupported report format: %q", format)
}

// Decode reads a document written by Render in a machine format.
func Decode(r io.Reader, format string) (Document, error) {
	var doc Document
	var err error
	switch strings.ToLower(format) {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&doc)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&doc)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&doc)
	default:
		return Document{}, fmt.Errorf("cannot decode report format: %q", format)
	}
	return doc, err
}

func renderTable(w io.Writer, doc Document) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNAL\tOWNER\tWORST\tFIRST VIOLATION\tEND\tTOGGLES\tINITIAL\tMIN\tMAX\tLIMIT\tSTATES\tDESCRIPTION")
	for _, row := range doc.Signals {
		initial, minV, maxV, limit, states := "", "", "", "", ""
		switch row.Kind {
		case "numeric":
			initial = formatFloat(row.InitialValue)
			minV = formatFloat(row.MinValue)
			maxV = formatFloat(row.MaxValue)
			limit = formatFloat(row.Limit)
		case "state":
			initial = row.InitialState
			limit = row.LimitState
			states = strings.Join(row.StateLog, ",")
		}
		desc := row.Description
		if row.Comment != "" {
			desc += " (" + row.Comment + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.SignalID,
			row.Owner,
			dash(row.WorstSeverity),
			dash(row.FirstViolation),
			dash(row.EndTime),
			row.Toggles,
			dash(initial),
			dash(minV),
			dash(maxV),
			dash(limit),
			dash(states),
			desc,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := doc.Stats
	_, err := fmt.Fprintf(w, "\n%d signals, %d lines: %d applied, %d skipped, %d malformed, %d filtered\n",
		len(doc.Signals), s.Lines, s.Applied, s.Skipped, s.Malformed, s.Filtered)
	return err
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
