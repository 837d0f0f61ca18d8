package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/certcheck/cleaner"
	"github.com/use-agent/certcheck/identity"
	"github.com/use-agent/certcheck/parser"
	"github.com/use-agent/certcheck/simhash"
	"github.com/use-agent/certcheck/verify"
)

var (
	inspectFile     string
	inspectExpected string
	inspectHTML     bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Parse a saved result page and print the decision",
	Long: `Runs the result-page parser and classifier over a saved page, without a
browser. Use --html for a saved DOM; its layout fingerprint is printed too and
can be used as CERTCHECK_REFERENCE_LAYOUT.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), inspectFile)
		if err != nil {
			return err
		}
		expected := inspectExpected
		if expected == "" {
			expected = os.Getenv("CERTCHECK_EXPECTED_ID")
		}
		return writeReport(cmd.OutOrStdout(), inspect(raw, expected, inspectHTML))
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFile, "file", "f", "-", "page to inspect, - for stdin")
	inspectCmd.Flags().StringVar(&inspectExpected, "expected", "", "expected CPF (default $CERTCHECK_EXPECTED_ID)")
	inspectCmd.Flags().BoolVar(&inspectHTML, "html", false, "input is HTML rather than page text")
}

type report struct {
	Status   string        `json:"status"`
	Mismatch bool          `json:"mismatch"`
	Expected string        `json:"expected_id,omitempty"`
	Result   parser.Result `json:"result"`
	Layout   string        `json:"layout_fingerprint,omitempty"`
}

func inspect(raw, expected string, isHTML bool) report {
	text := raw
	var layout string
	if isHTML {
		text = cleaner.VisibleText(raw)
		layout = fmt.Sprintf("%016x", simhash.Layout(raw))
	}

	result := parser.Parse(text)
	d := verify.Classify(result, expected)
	r := report{
		Status:   string(d.Status),
		Mismatch: d.Mismatch,
		Result:   result,
		Layout:   layout,
	}
	if expected != "" {
		r.Expected = identity.MaskForDisplay(expected)
	}
	return r
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(b), nil
}

func writeReport(w io.Writer, r report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
