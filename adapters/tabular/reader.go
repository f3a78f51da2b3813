package tabular

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taxosurv/domain/cohort"
	"taxosurv/internal/errors"

	"github.com/xuri/excelize/v2"
)

// File formats understood by DataReader
const (
	FormatTSV  = "tsv"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// DataReader loads a patient table from tab-delimited text, CSV or an Excel workbook
type DataReader struct {
	filePath string
	fileType string
	logger   *slog.Logger
}

// NewDataReader picks the format from the file extension. Anything that is
// not .csv or .xlsx is read as tab-delimited text.
func NewDataReader(filePath string, logger *slog.Logger) *DataReader {
	fileType := FormatTSV
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		fileType = FormatCSV
	case ".xlsx":
		fileType = FormatXLSX
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		logger:   logger.With("component", "tabular_reader"),
	}
}

// ReadTable reads the whole file into a cohort table
func (r *DataReader) ReadTable() (*cohort.Table, error) {
	r.logger.Debug("reading cohort table", "path", r.filePath, "format", r.fileType)

	if _, err := os.Stat(r.filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("input file " + r.filePath)
		}
		return nil, errors.IOError(r.filePath, err)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch r.fileType {
	case FormatXLSX:
		rows, err = r.readExcelRows()
	case FormatCSV:
		rows, err = r.readDelimitedRows(',')
	default:
		rows, err = r.readDelimitedRows('\t')
	}
	if err != nil {
		return nil, err
	}

	table, err := buildTable(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", r.filePath)
	}
	r.logger.Info("cohort table loaded",
		"path", r.filePath,
		"columns", len(table.Header),
		"rows", table.Len(),
		"elapsed_ms", time.Since(start).Milliseconds())
	return table, nil
}

func (r *DataReader) readDelimitedRows(comma rune) ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	defer file.Close()

	rows, err := ReadDelimited(file, comma)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", r.filePath)
	}
	return rows, nil
}

// readExcelRows reads the first worksheet of the workbook
func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("workbook %s has no sheets", r.filePath))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q of %s", sheets[0], r.filePath)
	}
	return rows, nil
}

// ReadDelimited parses delimiter-separated rows. Rows may be ragged; quotes
// are handled leniently.
func ReadDelimited(in io.Reader, comma rune) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return rows, nil
}

// buildTable turns raw rows into a table, padding short rows to the header width
func buildTable(rows [][]string) (*cohort.Table, error) {
	if len(rows) == 0 {
		return nil, errors.InvalidInput("table has no header row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" && len(header) > 1 {
			continue
		}
		cells := make([]string, len(header))
		copy(cells, row)
		data = append(data, cells)
	}
	return cohort.NewTable(header, data), nil
}

// ReadList reads a newline-delimited list of labels. Trailing carriage
// returns are stripped and blank lines skipped.
func ReadList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("list file " + path)
		}
		return nil, errors.IOError(path, err)
	}
	defer file.Close()

	var items []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError(path, err)
	}
	return items, nil
}
