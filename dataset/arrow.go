package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Field metadata keys carrying the column kind and level order.
const (
	KindMetadataKey   = "tidytune.kind"
	LevelsMetadataKey = "tidytune.levels"
)

// ReadAtSeeker is what the Arrow IPC file reader needs.
type ReadAtSeeker interface {
	io.Reader
	io.Seeker
	io.ReaderAt
}

// Schema describes t as an Arrow schema. Continuous columns are nullable
// Float64; categorical columns are nullable Utf8 with kind and level metadata.
func (t *Table) Schema() (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(t.cols))
	for i, c := range t.cols {
		if c.Kind == Continuous {
			fields[i] = arrow.Field{
				Name:     c.Name,
				Type:     arrow.PrimitiveTypes.Float64,
				Nullable: true,
				Metadata: arrow.NewMetadata([]string{KindMetadataKey}, []string{c.Kind.String()}),
			}
			continue
		}
		levels, err := json.Marshal(c.Levels)
		if err != nil {
			return nil, errors.Wrapf(err, "encode levels of %s", c.Name)
		}
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.NewMetadata(
				[]string{KindMetadataKey, LevelsMetadataKey},
				[]string{c.Kind.String(), string(levels)},
			),
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

// WriteArrow writes t as a single-record Arrow IPC file.
func WriteArrow(w io.Writer, t *Table) error {
	schema, err := t.Schema()
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for j, c := range t.cols {
		switch fb := b.Field(j).(type) {
		case *array.Float64Builder:
			fb.Reserve(c.Len())
			for _, v := range c.Num {
				if math.IsNaN(v) {
					fb.AppendNull()
				} else {
					fb.Append(v)
				}
			}
		case *array.StringBuilder:
			fb.Reserve(c.Len())
			for _, code := range c.Codes {
				if code == Missing {
					fb.AppendNull()
				} else {
					fb.Append(c.Levels[code])
				}
			}
		default:
			return errors.Newf("unexpected builder %T for column %s", fb, c.Name)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return errors.Wrap(err, "create arrow writer")
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return errors.Wrap(err, "write arrow record")
	}
	return errors.Wrap(fw.Close(), "close arrow writer")
}

// columnReader accumulates values of one field across record batches.
type columnReader struct {
	field  arrow.Field
	kind   Kind
	levels []string
	num    []float64
	labels []string
	nulls  []bool
}

// ReadArrow reads an Arrow IPC file. Fields written by WriteArrow round-trip
// exactly. Fields without metadata are mapped by type: numeric to continuous,
// boolean to binary No/Yes, strings to nominal with sorted levels.
func ReadArrow(r ReadAtSeeker) (*Table, error) {
	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "open arrow file")
	}
	defer fr.Close()

	schema := fr.Schema()
	readers := make([]*columnReader, schema.NumFields())
	for j, f := range schema.Fields() {
		cr, err := newColumnReader(f)
		if err != nil {
			return nil, err
		}
		readers[j] = cr
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, errors.Wrapf(err, "read record %d", i)
		}
		for j, cr := range readers {
			if err := cr.append(rec.Column(j)); err != nil {
				return nil, err
			}
		}
	}

	cols := make([]*Column, len(readers))
	for j, cr := range readers {
		c, err := cr.column()
		if err != nil {
			return nil, err
		}
		cols[j] = c
	}
	return New(cols...)
}

func newColumnReader(f arrow.Field) (*columnReader, error) {
	cr := &columnReader{field: f}
	if idx := f.Metadata.FindKey(KindMetadataKey); idx >= 0 {
		kind, err := ParseKind(f.Metadata.Values()[idx])
		if err != nil {
			return nil, errors.NewSchemaError("ReadArrow", f.Name, err.Error())
		}
		cr.kind = kind
		if idx := f.Metadata.FindKey(LevelsMetadataKey); idx >= 0 {
			if err := json.Unmarshal([]byte(f.Metadata.Values()[idx]), &cr.levels); err != nil {
				return nil, errors.NewSchemaError("ReadArrow", f.Name, "malformed level metadata")
			}
		}
		return cr, nil
	}
	switch f.Type.ID() {
	case arrow.FLOAT64, arrow.FLOAT32, arrow.INT64, arrow.INT32, arrow.INT16, arrow.INT8:
		cr.kind = Continuous
	case arrow.BOOL:
		cr.kind = Binary
		cr.levels = []string{"No", "Yes"}
	case arrow.STRING, arrow.LARGE_STRING:
		cr.kind = Nominal
	default:
		return nil, errors.NewSchemaError("ReadArrow", f.Name, fmt.Sprintf("unsupported arrow type %s", f.Type))
	}
	return cr, nil
}

func (cr *columnReader) append(a arrow.Array) error {
	for i := 0; i < a.Len(); i++ {
		null := a.IsNull(i)
		cr.nulls = append(cr.nulls, null)
		switch v := a.(type) {
		case *array.Float64:
			cr.num = append(cr.num, pick(null, v.Value(i)))
		case *array.Float32:
			cr.num = append(cr.num, pick(null, float64(v.Value(i))))
		case *array.Int64:
			cr.num = append(cr.num, pick(null, float64(v.Value(i))))
		case *array.Int32:
			cr.num = append(cr.num, pick(null, float64(v.Value(i))))
		case *array.Int16:
			cr.num = append(cr.num, pick(null, float64(v.Value(i))))
		case *array.Int8:
			cr.num = append(cr.num, pick(null, float64(v.Value(i))))
		case *array.Boolean:
			label := ""
			if !null {
				label = cr.levels[0]
				if v.Value(i) {
					label = cr.levels[1]
				}
			}
			cr.labels = append(cr.labels, label)
		case *array.String:
			cr.labels = append(cr.labels, labelOf(null, v.Value(i)))
		case *array.LargeString:
			cr.labels = append(cr.labels, labelOf(null, v.Value(i)))
		default:
			return errors.NewSchemaError("ReadArrow", cr.field.Name, fmt.Sprintf("unsupported arrow array %T", a))
		}
	}
	return nil
}

func pick(null bool, v float64) float64 {
	if null {
		return math.NaN()
	}
	return v
}

func labelOf(null bool, v string) string {
	if null {
		return ""
	}
	return v
}

func (cr *columnReader) column() (*Column, error) {
	name := cr.field.Name
	if cr.kind == Continuous {
		if cr.num == nil && len(cr.labels) > 0 {
			return nil, errors.NewSchemaError("ReadArrow", name, "continuous kind on a text field")
		}
		if cr.num == nil {
			cr.num = []float64{}
		}
		return NewContinuous(name, cr.num), nil
	}
	if cr.num != nil {
		return nil, errors.NewSchemaError("ReadArrow", name, fmt.Sprintf("%s kind on a numeric field", cr.kind))
	}
	levels := cr.levels
	if levels == nil {
		seen := map[string]bool{}
		for _, l := range cr.labels {
			if !isMissingLabel(l) && !seen[l] {
				seen[l] = true
				levels = append(levels, l)
			}
		}
		sort.Strings(levels)
	}
	return NewCategorical(name, cr.kind, levels, cr.labels)
}

// SaveFile writes t to path in Arrow IPC file format.
func SaveFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteArrow(f, t); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// LoadFile reads an Arrow IPC file from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadArrow(f)
}
