package frame

import (
	"bytes"
	"encoding/csv"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/censusflow/censusflow/pkg/errors"
)

// encodings is the ordered fallback list for reading Census CSV files.
// Older vintage files ship in Latin-1 or Windows-1252.
var encodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8},
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
}

// ReadCSV loads a delimited file into a frame of string columns. The
// first row is the header. Each encoding in the fallback list is tried
// in order; exhausting the list is an error.
func ReadCSV(path string) (*Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read file").
			WithDetail("path", path)
	}

	var decoded []byte
	var decodeErr error
	for _, e := range encodings {
		if e.name == "utf-8" {
			if utf8.Valid(raw) {
				decoded = raw
				break
			}
			continue
		}
		decoded, decodeErr = e.enc.NewDecoder().Bytes(raw)
		if decodeErr == nil {
			break
		}
		decoded = nil
	}
	if decoded == nil {
		return nil, errors.New(errors.ErrorTypeFile, "no supported encoding could decode file").
			WithDetail("path", path)
	}

	return parseCSV(decoded, path)
}

func parseCSV(data []byte, path string) (*Frame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to parse CSV").
			WithDetail("path", path)
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrorTypeFile, "empty CSV file").
			WithDetail("path", path)
	}

	header := rows[0]
	f := New()
	cols := make([]*Column, len(header))
	for i, name := range header {
		cols[i] = NewColumn(name, TypeString)
		if err := f.AddColumn(cols[i]); err != nil {
			return nil, err
		}
	}
	for _, row := range rows[1:] {
		for i, c := range cols {
			if i < len(row) {
				c.AppendString(row[i])
			} else {
				c.AppendNull()
			}
		}
	}
	return f, nil
}

// WriteCSV writes the frame as UTF-8 CSV with a header row. Null cells
// become empty fields.
func (f *Frame) WriteCSV(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").
			WithDetail("path", path)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(f.Names()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write CSV header")
	}

	row := make([]string, f.NumCols())
	for r := 0; r < f.NumRows(); r++ {
		for i, c := range f.cols {
			row[i] = c.StringAt(r)
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write CSV row").
				WithDetail("row", r)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush CSV").
			WithDetail("path", path)
	}
	return out.Close()
}
