package local

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
)

// ErrMissingHeader is returned when a CSV input has no header record.
var ErrMissingHeader = errors.New("csv input has no header row")

const utf8BOM = "\ufeff"

// RowReader streams data records of a header-keyed CSV file.
// It is not safe for concurrent use.
type RowReader struct {
	cr     *csv.Reader
	closer io.Closer
	header []string
	next   int
}

var _ core.RowSource = (*RowReader)(nil)

// OpenRows opens path and reads its header record.
func OpenRows(path string) (*RowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	rr, err := NewRowReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rr.closer = f
	return rr, nil
}

// NewRowReader reads the header record from r. The caller keeps ownership of r.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if len(header) == 1 && header[0] == "" {
		return nil, ErrMissingHeader
	}
	return &RowReader{cr: cr, header: header}, nil
}

// Header returns the column names in file order.
func (r *RowReader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next data record, or io.EOF once the input is exhausted.
// Columns missing from a short record read as "".
func (r *RowReader) Next() (core.Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.Row{}, io.EOF
		}
		return core.Row{}, fmt.Errorf("read row %d: %w", r.next, err)
	}
	values := make(map[string]string, len(r.header))
	for i, col := range r.header {
		if i < len(rec) {
			values[col] = rec[i]
		} else {
			values[col] = ""
		}
	}
	row := core.Row{Index: r.next, Values: values}
	r.next++
	return row, nil
}

// Close releases the underlying file when the reader was created by OpenRows.
func (r *RowReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// CSVSink appends records to a CSV file and flushes after every write.
// It is not safe for concurrent use; callers serialize writes.
type CSVSink struct {
	f    *os.File
	w    *csv.Writer
	path string
}

var _ core.RowSink = (*CSVSink)(nil)

// OpenCSVSink opens path for writing. In append mode existing content is kept and
// no header is written; otherwise the file is truncated and header is written first.
func OpenCSVSink(path string, header []string, appendMode bool) (*CSVSink, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f), path: path}
	if !appendMode {
		if err := s.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file the sink writes to.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(record []string) error {
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.f.Close()
	s.f = nil
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", s.path, closeErr)
	}
	return nil
}
