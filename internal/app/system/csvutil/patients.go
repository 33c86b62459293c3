// internal/app/system/csvutil/patients.go
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// ErrTooManyRows is returned when the CSV exceeds ParseOptions.MaxRows.
var ErrTooManyRows = errors.New("csv: too many rows")

// PatientCSVRow is the normalized row produced by ParsePatientCSV.
type PatientCSVRow struct {
	FirstName string
	LastName  string
	DOB       string // YYYY-MM-DD, may be empty
	Phone     string
	MRN       string
}

// RowError describes why a row was rejected during parsing.
type RowError struct {
	Line   int
	Reason string
	Raw    []string
}

// ParseOptions controls row limits during parsing.
type ParseOptions struct {
	// MaxRows caps the number of data rows; 0 means unlimited.
	MaxRows int
}

// DefaultParseOptions returns options with no row limit. Handlers enforce
// MaxRows themselves so the cap shows up in their own error path.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{}
}

// ParseResult holds the valid rows and per-row errors from a parse pass.
type ParseResult struct {
	Rows   []PatientCSVRow
	Errors []RowError
}

// HasErrors reports whether any rows were rejected.
func (r *ParseResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// FormatErrorsHTML renders the first maxShow row errors as an HTML fragment
// suitable for flash messages. Returns empty when there are no errors.
func (r *ParseResult) FormatErrorsHTML(maxShow int) template.HTML {
	if len(r.Errors) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Upload rejected: %d row(s) are invalid.<br>", len(r.Errors))
	b.WriteString("Each row must have First Name, Last Name, and a unique MRN; DOB (if present) must be YYYY-MM-DD.<br>")

	show := maxShow
	if len(r.Errors) < show {
		show = len(r.Errors)
	}
	for i := 0; i < show; i++ {
		e := r.Errors[i]
		raw := strings.Join(e.Raw, " | ")
		if strings.TrimSpace(raw) == "" {
			raw = "(empty row)"
		}
		fmt.Fprintf(&b, "&bull; line %d: %s &rarr; %s<br>",
			e.Line,
			template.HTMLEscapeString(raw),
			template.HTMLEscapeString(e.Reason))
	}
	if remaining := len(r.Errors) - show; remaining > 0 {
		fmt.Fprintf(&b, "&hellip;and %d more<br>", remaining)
	}
	return template.HTML(b.String())
}

// ParsePatientCSV reads all rows from r, strips a UTF-8 BOM, skips a header
// if present, validates each row, and returns normalized rows plus per-row
// errors. Expected columns: First Name, Last Name, DOB, Phone, MRN.
// It never writes to a DB; it's safe to call before any mutations.
func ParsePatientCSV(r io.Reader, opts ParseOptions) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &ParseResult{}

	// Pull first row to check header
	first, ferr := reader.Read()
	if ferr == io.EOF {
		return result, nil
	}
	if ferr != nil {
		return nil, ferr
	}
	if len(first) > 0 {
		first[0] = strings.TrimPrefix(first[0], "\ufeff")
	}

	line := 1
	var raw [][]string
	var lines []int
	if isPatientHeader(first) {
		// header detected → skip
	} else {
		raw = append(raw, first)
		lines = append(lines, line)
	}
	for {
		rec, e := reader.Read()
		line++
		if e == io.EOF {
			break
		}
		if e != nil || len(rec) == 0 {
			continue
		}
		raw = append(raw, rec)
		lines = append(lines, line)
	}

	if opts.MaxRows > 0 && len(raw) > opts.MaxRows {
		return nil, ErrTooManyRows
	}

	seenMRN := map[string]bool{}
	for i, rec := range raw {
		row := normalizePatientRow(rec)
		if row.FirstName == "" && row.LastName == "" && row.MRN == "" && row.Phone == "" && row.DOB == "" {
			continue
		}

		reason := validatePatientRow(row)
		if reason == "" && seenMRN[row.MRN] {
			reason = "duplicate MRN in file"
		}
		if reason != "" {
			result.Errors = append(result.Errors, RowError{Line: lines[i], Reason: reason, Raw: rec})
			continue
		}

		seenMRN[row.MRN] = true
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func isPatientHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	c0 := strings.TrimSpace(rec[0])
	c1 := strings.TrimSpace(rec[1])
	return (strings.EqualFold(c0, "first name") || strings.EqualFold(c0, "first_name")) &&
		(strings.EqualFold(c1, "last name") || strings.EqualFold(c1, "last_name"))
}

func normalizePatientRow(rec []string) PatientCSVRow {
	get := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	return PatientCSVRow{
		FirstName: get(0),
		LastName:  get(1),
		DOB:       get(2),
		Phone:     get(3),
		MRN:       get(4),
	}
}

func validatePatientRow(row PatientCSVRow) string {
	if row.FirstName == "" {
		return "missing first name"
	}
	if row.LastName == "" {
		return "missing last name"
	}
	if row.MRN == "" {
		return "missing MRN"
	}
	if row.DOB != "" {
		if _, err := time.Parse("2006-01-02", row.DOB); err != nil {
			return "invalid DOB (want YYYY-MM-DD)"
		}
	}
	return ""
}
