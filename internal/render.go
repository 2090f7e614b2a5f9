package internal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// EscapePolicy decides how cell values are written into the table markup.
type EscapePolicy string

const (
	// EscapeNone inserts cell values verbatim.
	EscapeNone EscapePolicy = "none"
	// EscapeHTML escapes <, >, &, ' and ".
	EscapeHTML EscapePolicy = "html"
	// EscapeSanitize keeps safe inline markup and strips the rest.
	EscapeSanitize EscapePolicy = "sanitize"
)

var ugcPolicy = bluemonday.UGCPolicy()

// ParseEscapePolicy accepts the values of the --escape flag.
func ParseEscapePolicy(s string) (EscapePolicy, error) {
	switch p := EscapePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case EscapeNone, EscapeHTML, EscapeSanitize:
		return p, nil
	case "":
		return EscapeHTML, nil
	}
	return "", fmt.Errorf("unknown escape policy %q (want none, html or sanitize)", s)
}

func (p EscapePolicy) apply(value string) string {
	switch p {
	case EscapeNone:
		return value
	case EscapeSanitize:
		return ugcPolicy.Sanitize(value)
	}
	return html.EscapeString(value)
}

// ReadRows parses CSV from r. Input must be UTF-8; rows may have any number
// of fields. Blank lines are skipped and produce no row.
func ReadRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(transform.NewReader(r, encoding.UTF8Validator))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// RenderTable turns rows into a table. The first row, if any, becomes the
// header.
func RenderTable(rows [][]string, policy EscapePolicy) string {
	b := strings.Builder{}
	b.WriteString("<table>\n")

	if len(rows) > 0 {
		b.WriteString("  <thead>\n    <tr>")
		for _, field := range rows[0] {
			b.WriteString("<th>" + policy.apply(field) + "</th>")
		}
		b.WriteString("</tr>\n  </thead>\n")
		rows = rows[1:]
	}

	b.WriteString("  <tbody>\n")
	for _, row := range rows {
		b.WriteString("    <tr>")
		for _, field := range row {
			b.WriteString("<td>" + policy.apply(field) + "</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("  </tbody>\n</table>")

	return b.String()
}

// RenderFile reads the CSV file at path and renders it as a table.
func RenderFile(path string, policy EscapePolicy) (string, error) {
	rows, err := readRowsFile(path)
	if err != nil {
		return "", err
	}
	return RenderTable(rows, policy), nil
}

func readRowsFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Path = path
		}
		return nil, err
	}
	return rows, nil
}
