// Package tabular turns uploaded spreadsheets into named-column rows.
//
// Delimited files go through encoding/csv behind the BOM and UTF-8 readers in
// streaming.go. Workbooks are read with excelize; only the first sheet is
// used and date-formatted cells come back as YYYY-MM-DD.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrEmptyFile         = errors.New("empty file")
	ErrFileTooLarge      = errors.New("file too large")
	ErrTooManyRows       = errors.New("too many rows")
	ErrMalformed         = errors.New("invalid csv")
)

// Row maps a column name to its raw cell text.
type Row map[string]string

// Table is a loaded spreadsheet: the header row as Columns and every data
// row below it, blank rows included so positions stay aligned with the file.
type Table struct {
	FileName string
	Columns  []string
	Rows     []Row
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Options bounds what Load will accept. Zero values mean unlimited.
type Options struct {
	MaxBytes int64
	MaxRows  int
}

// Format identifies a supported spreadsheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks a loader from the file extension. Legacy .xls
// workbooks are recognised but rejected.
func DetectFormat(fileName string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks are not supported, save as .xlsx", ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Load reads r according to the extension of fileName.
func Load(r io.Reader, fileName string, opts Options) (*Table, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}

	var t *Table
	switch format {
	case FormatXLSX:
		t, err = LoadXLSX(r, opts)
	default:
		t, err = LoadCSV(r, opts)
	}
	if err != nil {
		return nil, err
	}
	t.FileName = filepath.Base(fileName)
	return t, nil
}

// LoadFile opens path and loads it.
func LoadFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, path, opts)
}

// LoadCSV reads a comma-delimited file whose first record is the header.
func LoadCSV(r io.Reader, opts Options) (*Table, error) {
	cr := csv.NewReader(wrapDelimited(r, opts.MaxBytes))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, csvError(err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		records = append(records, rec)
		if opts.MaxRows > 0 && len(records) > opts.MaxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, opts.MaxRows)
		}
	}
	return build(header, records), nil
}

func csvError(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return ErrFileTooLarge
	}
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

// LoadXLSX reads the first worksheet of an Office Open XML workbook.
func LoadXLSX(r io.Reader, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(newSizeLimitReader(r, opts.MaxBytes))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyFile
	}
	if opts.MaxRows > 0 && len(raw)-1 > opts.MaxRows {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, opts.MaxRows)
	}

	dates := newDateCells(f, sheet)
	for i := 1; i < len(raw); i++ {
		for j, v := range raw[i] {
			raw[i][j] = dates.render(j+1, i+1, v)
		}
	}
	return build(raw[0], raw[1:]), nil
}

// dateCells renders serial numbers in date-styled cells as ISO dates.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) render(col, row int, v string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return v
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return v
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return v
	}
	return t.Format(time.DateOnly)
}

func (d *dateCells) isDateStyle(id int) bool {
	if id == 0 {
		return false
	}
	if v, ok := d.styles[id]; ok {
		return v
	}
	style, err := d.f.GetStyle(id)
	isDate := err == nil && style != nil && (builtinDateFormat(style.NumFmt) ||
		(style.CustomNumFmt != nil && customDateFormat(*style.CustomNumFmt)))
	d.styles[id] = isDate
	return isDate
}

func builtinDateFormat(id int) bool {
	return (id >= 14 && id <= 17) || id == 22 || (id >= 27 && id <= 36) || (id >= 50 && id <= 58)
}

// customDateFormat treats a number format as a date when, outside quoted
// literals, it contains a day or year token.
func customDateFormat(code string) bool {
	quoted := false
	for _, c := range strings.ToLower(code) {
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == 'd' || c == 'y':
			return true
		}
	}
	return false
}

// build assigns unique names to the header cells and keys every record by
// them. Blank headers become "Unnamed: i" and repeats get ".1", ".2"
// suffixes.
func build(header []string, records [][]string) *Table {
	cols := uniqueColumns(header)
	t := &Table{Columns: cols, Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		row := make(Row, len(cols))
		for i, col := range cols {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func uniqueColumns(header []string) []string {
	cols := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			base := name
			for {
				n++
				name = base + "." + strconv.Itoa(n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 0
		cols[i] = name
	}
	return cols
}

// IsBlank reports whether every cell in the row is empty after trimming.
func (r Row) IsBlank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
