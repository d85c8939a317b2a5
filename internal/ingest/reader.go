package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// HeaderScanRows is how many leading rows are searched for the header row.
const HeaderScanRows = 20

// minRecognizedHeaders is the number of canonical columns a header row needs.
const minRecognizedHeaders = 2

var (
	// ErrNoHeaderRow is returned when no row near the top looks like a header
	ErrNoHeaderRow = errors.New("no header row found")

	// ErrEmptySheet is returned when the workbook holds no data
	ErrEmptySheet = errors.New("sheet is empty")

	// ErrUnsupportedFile is returned for extensions other than csv, txt, xlsx and xlsm
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// Sheet is a grid of cells read from a workbook or CSV file.
type Sheet struct {
	Name  string
	Cells [][]string
}

// Rows detects the header row and returns the data rows below it.
func (s Sheet) Rows() ([]Row, error) {
	if len(s.Cells) == 0 {
		return nil, ErrEmptySheet
	}
	idx := DetectHeader(s.Cells)
	if idx < 0 {
		return nil, fmt.Errorf("%w in sheet %q", ErrNoHeaderRow, s.Name)
	}
	headers := s.Cells[idx]
	grid := make([][]string, 0, len(s.Cells)-idx-1)
	for _, values := range s.Cells[idx+1:] {
		grid = append(grid, values)
	}
	return NewRows(headers, grid, idx+1), nil
}

// DetectHeader returns the index of the first row among the first
// HeaderScanRows that carries at least two recognised column labels, or -1.
func DetectHeader(cells [][]string) int {
	cols := NewColumns(entity.VariantClient)
	limit := len(cells)
	if limit > HeaderScanRows {
		limit = HeaderScanRows
	}
	for i := 0; i < limit; i++ {
		if cols.RecognizedFields(cells[i]) >= minRecognizedHeaders {
			return i
		}
	}
	return -1
}

// ReadWorkbook reads an xlsx workbook. When sheet is empty the first sheet
// holding any cell is used. Cells are read raw so dates arrive as serials.
func ReadWorkbook(r io.Reader, sheet string) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if sheet != "" {
		names = []string{sheet}
	}
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return Sheet{}, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		if len(rows) > 0 {
			return Sheet{Name: name, Cells: rows}, nil
		}
	}
	return Sheet{}, ErrEmptySheet
}

// ReadCSV reads a delimited export, sniffing the separator among
// semicolon, comma and tab from the first non-empty line.
func ReadCSV(r io.Reader) (Sheet, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to read csv: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffSeparator(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return Sheet{}, ErrEmptySheet
	}
	return Sheet{Name: "csv", Cells: records}, nil
}

func sniffSeparator(data []byte) rune {
	var line string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}
	best, bestCount := ';', 0
	for _, sep := range []rune{';', ',', '\t'} {
		if n := strings.Count(line, string(sep)); n > bestCount {
			best, bestCount = sep, n
		}
	}
	return best
}

// ReadFile picks the reader from the file name extension.
func ReadFile(name string, r io.Reader, sheet string) (Sheet, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".txt"):
		return ReadCSV(r)
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return ReadWorkbook(r, sheet)
	}
	return Sheet{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
}
