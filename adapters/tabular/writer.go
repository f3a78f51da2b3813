package tabular

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"taxosurv/domain/cohort"
	"taxosurv/internal/errors"
)

// GroupTableSuffix is appended to the cancer label to name its table file
const GroupTableSuffix = "_group.tsv"

// TSVWriter writes per-cancer group tables into an output directory
type TSVWriter struct {
	outputDir string
}

// NewTSVWriter creates a writer rooted at outputDir
func NewTSVWriter(outputDir string) *TSVWriter {
	return &TSVWriter{outputDir: outputDir}
}

// GroupTablePath returns the file a cancer's table is written to.
// Path separators in the label are replaced so the file stays in outputDir.
func (w *TSVWriter) GroupTablePath(cancer string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(cancer)
	return filepath.Join(w.outputDir, name+GroupTableSuffix)
}

// WriteGroupTable replaces the cancer's table file with table
func (w *TSVWriter) WriteGroupTable(cancer string, table *cohort.Table) error {
	path := w.GroupTablePath(cancer)
	file, err := os.Create(path)
	if err != nil {
		return errors.IOError(path, err)
	}

	buf := bufio.NewWriter(file)
	if err := WriteDelimited(buf, table, '\t'); err != nil {
		file.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return errors.IOError(path, err)
	}
	if err := file.Close(); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

// WriteDelimited writes the header and rows of table separated by comma
func WriteDelimited(out io.Writer, table *cohort.Table, comma rune) error {
	cw := csv.NewWriter(out)
	cw.Comma = comma

	if err := cw.Write(table.Header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
