// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how a result is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses the --output flag. An empty value selects FormatTable.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Print renders data in format. Table output requires a TableRenderer;
// anything else falls back to JSON.
func Print(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(w, renderer)
		}
		return PrintJSON(w, data)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

const (
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

// Printer writes status messages, colored when enabled.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer, color bool) *Printer {
	return &Printer{out: out, color: color}
}

// Success prints msg in green.
func (p *Printer) Success(msg string) { p.line(ansiGreen, msg) }

// Warning prints msg in yellow.
func (p *Printer) Warning(msg string) { p.line(ansiYellow, msg) }

// Error prints msg in red.
func (p *Printer) Error(msg string) { p.line(ansiRed, msg) }

func (p *Printer) line(color, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "%s%s%s\n", color, msg, ansiReset)
		return
	}
	_, _ = fmt.Fprintln(p.out, msg)
}
