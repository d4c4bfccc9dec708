package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"restock-monitor/internal/models"
	"restock-monitor/internal/monitor"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return newOutput(cmd.OutOrStdout(), jsonMode)
}

func newOutput(w io.Writer, jsonMode bool) *Output {
	o := &Output{
		writer:   w,
		jsonMode: jsonMode,
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
		cyan:     color.New(color.FgCyan),
		bold:     color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
	// color.NoColor tracks whether stdout is a terminal.
	if jsonMode || color.NoColor {
		for _, c := range []*color.Color{o.green, o.red, o.yellow, o.cyan, o.bold, o.dim} {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.green.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.red.Fprintf(o.writer, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.yellow.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.cyan.Fprintf(o.writer, format+"\n", args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.bold.Fprintf(o.writer, format+"\n", args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintf(o.writer, format+"\n", args...)
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.green.Sprint(text) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.red.Sprint(text) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.yellow.Sprint(text) }

// Outcome colors a cycle outcome.
func (o *Output) Outcome(outcome monitor.Outcome) string {
	switch outcome {
	case monitor.OutcomeRestock:
		return o.Green("🚀 RESTOCK")
	case monitor.OutcomeRecorded:
		return "recorded"
	case monitor.OutcomeCancelled:
		return o.Yellow(string(outcome))
	default:
		return o.Red(string(outcome))
	}
}

// DeliveryStatus colors a restock notification status.
func (o *Output) DeliveryStatus(status models.DeliveryStatus) string {
	switch status {
	case models.DeliverySent:
		return o.Green(string(status))
	case models.DeliveryFailed:
		return o.Red(string(status))
	default:
		return o.Yellow(string(status))
	}
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("─", w)
	}
	t.output.Println(t.output.dim.Sprint(strings.Join(seps, "──")))

	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		padded := cell + strings.Repeat(" ", max(0, widths[i]-displayWidth(cell)))
		if isHeader {
			padded = t.output.bold.Sprint(padded)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

// displayWidth counts runes, ignoring ANSI escape sequences.
func displayWidth(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			n++
		}
	}
	return n
}
