package validator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Report is the outcome of a batch validation.
type Report struct {
	RunID    string          `json:"run_id" yaml:"run_id"`
	Passed   bool            `json:"passed" yaml:"passed"`
	Checked  int             `json:"checked" yaml:"checked"`
	Failures []PackageResult `json:"failures" yaml:"failures"`
}

// PackageResult is the outcome for one package. Only packages with at
// least one violation appear in a Report.
type PackageResult struct {
	Package    string            `json:"package" yaml:"package"`
	Ecosystem  string            `json:"ecosystem" yaml:"ecosystem"`
	Version    string            `json:"version,omitempty" yaml:"version,omitempty"`
	Stars      int               `json:"stars" yaml:"stars"`
	LastUpdate time.Time         `json:"last_update" yaml:"last_update"`
	URLs       map[string]string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Violations []Violation       `json:"violations" yaml:"violations"`
}

func (r *PackageResult) add(check CheckKind, msg string) {
	r.Violations = append(r.Violations, Violation{Check: check, Message: msg})
}

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Render writes the report in the given format. An empty batch writes
// nothing in any format.
func (r *Report) Render(w io.Writer, format Format) error {
	if r.Checked == 0 {
		if _, err := ParseFormat(string(format)); err != nil {
			return err
		}
		return nil
	}

	switch format {
	case FormatText, "":
		return r.WriteText(w)
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
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteText writes the human-readable report. An empty batch has no
// report; the "No packages to validate" log line stands in for it.
func (r *Report) WriteText(w io.Writer) error {
	if r.Checked == 0 {
		return nil
	}

	var b strings.Builder
	if r.Passed {
		b.WriteString("\n✅ All packages passed security validation\n")
	} else {
		b.WriteString("\n❌ Security validation failed:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "\n  Package: %s\n", f.Package)
			for _, v := range f.Violations {
				fmt.Fprintf(&b, "  • %s\n", v.Message)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
