// Command pdf-form-fields lists the fillable fields of a PDF template as the
// autofill engine sees them, so REDCap variables can be named to match.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
	"github.com/a3tai/redcap-pdf-autofill/internal/logging"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform"
)

var (
	outputFormat = pflag.String("format", "text", "Output format: text, json")
	showValues   = pflag.Bool("values", false, "Also print the values currently stored in the form")
	verbose      = pflag.Bool("verbose", false, "Enable debug logging")
)

// fieldReport is the JSON shape of one listed field
type fieldReport struct {
	Name    string             `json:"name"`
	Kind    fieldmap.FieldKind `json:"kind"`
	Options []string           `json:"options,omitempty"`
	Value   fieldmap.FillValue `json:"value,omitempty"`
}

type formReport struct {
	FilePath   string        `json:"file_path"`
	PageCount  int           `json:"page_count"`
	FieldCount int           `json:"field_count"`
	Fields     []fieldReport `json:"fields"`
}

func main() {
	pflag.Usage = printUsage
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: PDF file path required\n\n")
		printUsage()
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, OutputPath: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tmpl, err := acroform.Open(pflag.Arg(0), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading form: %v\n", err)
		os.Exit(1)
	}

	report := buildReport(pflag.Arg(0), tmpl, *showValues)
	if err := writeReport(os.Stdout, report, *outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "USAGE:")
	fmt.Fprintln(os.Stderr, "  pdf-form-fields [OPTIONS] <pdf_file>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "OPTIONS:")
	pflag.PrintDefaults()
}

func buildReport(path string, tmpl *acroform.Template, withValues bool) *formReport {
	var values fieldmap.FillInstruction
	if withValues {
		values = tmpl.Values()
	}

	fields := tmpl.Fields()
	report := &formReport{
		FilePath:   path,
		PageCount:  tmpl.PageCount(),
		FieldCount: len(fields),
		Fields:     make([]fieldReport, 0, len(fields)),
	}
	for _, f := range fields {
		report.Fields = append(report.Fields, fieldReport{
			Name:    f.FieldName(),
			Kind:    f.Kind(),
			Options: fieldmap.FieldOptions(f),
			Value:   values[f.FieldName()],
		})
	}
	return report
}

func writeReport(w io.Writer, report *formReport, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "text":
		writeText(w, report)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeText(w io.Writer, report *formReport) {
	fmt.Fprintf(w, "%s: %d pages, %d fields\n", report.FilePath, report.PageCount, report.FieldCount)
	if report.FieldCount == 0 {
		fmt.Fprintln(w, "No fillable fields found")
		return
	}
	for _, f := range report.Fields {
		fmt.Fprintf(w, "  %-24s %-15s", f.Name, f.Kind)
		if len(f.Options) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(f.Options, ", "))
		}
		if f.Value != nil {
			fmt.Fprintf(w, " = %v", f.Value)
		}
		fmt.Fprintln(w)
	}
}
