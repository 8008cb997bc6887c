package frame

import (
	"context"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/censusflow/censusflow/pkg/errors"
)

func arrowType(t Type) arrow.DataType {
	switch t {
	case TypeFloat:
		return arrow.PrimitiveTypes.Float64
	case TypeInt:
		return arrow.PrimitiveTypes.Int64
	default:
		return arrow.BinaryTypes.String
	}
}

// WriteParquet writes the frame as a snappy-compressed parquet file
func (f *Frame) WriteParquet(path string) error {
	fields := make([]arrow.Field, f.NumCols())
	for i, c := range f.cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet file").
			WithDetail("path", path)
	}
	defer out.Close()

	alloc := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(alloc))

	fw, err := pqarrow.NewFileWriter(schema, out, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet writer").
			WithDetail("path", path)
	}

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for row := 0; row < f.NumRows(); row++ {
		for i, c := range f.cols {
			fb := builder.Field(i)
			if c.Null[row] {
				fb.AppendNull()
				continue
			}
			switch b := fb.(type) {
			case *array.StringBuilder:
				b.Append(c.StringAt(row))
			case *array.Float64Builder:
				v, _ := c.FloatAt(row)
				b.Append(v)
			case *array.Int64Builder:
				b.Append(c.Ints[row])
			default:
				fb.AppendNull()
			}
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()

	if err := fw.WriteBuffered(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet record batch").
			WithDetail("path", path)
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close parquet writer").
			WithDetail("path", path)
	}
	return out.Close()
}

// ReadParquet loads a parquet file into a frame. String columns map to
// TypeString, floating-point to TypeFloat, integer to TypeInt; anything
// else is read through its string representation.
func ReadParquet(path string) (*Frame, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open parquet file").
			WithDetail("path", path)
	}
	defer in.Close()

	fr, err := file.NewParquetReader(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet footer").
			WithDetail("path", path)
	}
	defer fr.Close()

	alloc := memory.NewGoAllocator()
	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, alloc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow reader").
			WithDetail("path", path)
	}

	schema, err := ar.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet schema").
			WithDetail("path", path)
	}

	f := New()
	cols := make([]*Column, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		field := schema.Field(i)
		var typ Type
		switch field.Type.ID() {
		case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
			typ = TypeFloat
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
			arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
			typ = TypeInt
		default:
			typ = TypeString
		}
		cols[i] = NewColumn(field.Name, typ)
		if err := f.AddColumn(cols[i]); err != nil {
			return nil, err
		}
	}

	rr, err := ar.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create record reader").
			WithDetail("path", path)
	}
	defer rr.Release()

	for rr.Next() {
		rec := rr.Record()
		for i := 0; i < int(rec.NumCols()); i++ {
			appendArrowColumn(cols[i], rec.Column(i))
		}
	}

	return f, nil
}

func appendArrowColumn(c *Column, arr arrow.Array) {
	for row := 0; row < arr.Len(); row++ {
		if arr.IsNull(row) {
			c.AppendNull()
			continue
		}
		switch a := arr.(type) {
		case *array.String:
			c.AppendString(a.Value(row))
		case *array.Float64:
			c.AppendFloat(a.Value(row))
		case *array.Float32:
			c.AppendFloat(float64(a.Value(row)))
		case *array.Int64:
			c.AppendInt(a.Value(row))
		case *array.Int32:
			c.AppendInt(int64(a.Value(row)))
		default:
			c.AppendNull()
		}
	}
}

// ParquetRowCount returns the row count from a parquet file's footer
// without materializing the data.
func ParquetRowCount(path string) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to open parquet file").
			WithDetail("path", path)
	}
	defer in.Close()

	fr, err := file.NewParquetReader(in)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet footer").
			WithDetail("path", path)
	}
	defer fr.Close()

	return fr.NumRows(), nil
}
