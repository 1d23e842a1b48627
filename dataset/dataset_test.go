package dataset

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func mustCategorical(t *testing.T, name string, kind Kind, levels, labels []string) *Column {
	t.Helper()
	c, err := NewCategorical(name, kind, levels, labels)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(
		mustCategorical(t, "id", Nominal, []string{"a", "b", "c", "d"}, []string{"a", "b", "c", "d"}),
		mustCategorical(t, "Fatigue", Binary, YesNo, []string{"Yes", "No", "", "Yes"}),
		mustCategorical(t, "Weakness", Ordinal, Severity, []string{"None", "Severe", "Mild", "Mild"}),
		NewContinuous("BodyTemp", []float64{98.6, math.NaN(), 101.2, 99.1}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestNewCategoricalValidation(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		levels []string
		labels []string
	}{
		{"unknown label", Ordinal, Severity, []string{"None", "Extreme"}},
		{"binary with three levels", Binary, []string{"a", "b", "c"}, nil},
		{"duplicate level", Nominal, []string{"x", "x"}, nil},
		{"continuous kind", Continuous, []string{"x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCategorical("col", tt.kind, tt.levels, tt.labels)
			var schemaErr *errors.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestColumnAccessors(t *testing.T) {
	c := mustCategorical(t, "Weakness", Nominal, Severity, []string{"Mild", "", "Severe", "Mild", "NA"})
	if got := c.MissingCount(); got != 2 {
		t.Errorf("MissingCount = %d", got)
	}
	if got := c.Counts(); !slices.Equal(got, []int{0, 2, 0, 1}) {
		t.Errorf("Counts = %v", got)
	}
	if c.Label(2) != "Severe" || c.Label(1) != "" || c.Float(0) != 1 || !math.IsNaN(c.Float(1)) {
		t.Errorf("unexpected accessors: %q %q %v %v", c.Label(2), c.Label(1), c.Float(0), c.Float(1))
	}

	ord, err := c.Recode(Ordinal, Severity)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Kind != Ordinal || !slices.Equal(ord.Codes, c.Codes) {
		t.Errorf("Recode changed codes: %v", ord.Codes)
	}
	if _, err := c.Recode(Ordinal, []string{"Mild", "Severe"}); err != nil {
		t.Errorf("present labels are a subset, recode should succeed: %v", err)
	}
	if _, err := c.Recode(Ordinal, []string{"None", "Mild"}); err == nil {
		t.Error("expected error when a present label is not a level")
	}
}

func TestTableOperations(t *testing.T) {
	tbl := sampleTable(t)

	if tbl.NRows() != 4 || tbl.NCols() != 4 {
		t.Fatalf("shape = %dx%d", tbl.NRows(), tbl.NCols())
	}
	if _, err := tbl.Column("Nausea"); err == nil {
		t.Error("expected SchemaError for absent column")
	}

	dropped := tbl.Drop("id", "NotThere")
	if !slices.Equal(dropped.Names(), []string{"Fatigue", "Weakness", "BodyTemp"}) {
		t.Errorf("Drop names = %v", dropped.Names())
	}
	if tbl.NCols() != 4 {
		t.Error("Drop mutated the receiver")
	}

	complete := tbl.CompleteRows()
	if !slices.Equal(complete, []int{0, 3}) {
		t.Errorf("CompleteRows = %v", complete)
	}

	sub := tbl.Rows([]int{3, 0}).WithRole(RoleTraining)
	if sub.Role() != RoleTraining || sub.NRows() != 2 {
		t.Fatalf("Rows/WithRole: role=%v rows=%d", sub.Role(), sub.NRows())
	}
	temp, _ := sub.Column("BodyTemp")
	if !slices.Equal(temp.Num, []float64{99.1, 98.6}) {
		t.Errorf("Rows order lost: %v", temp.Num)
	}

	a := NewContinuous("w_mild", []float64{0, 0, 1, 1})
	b := NewContinuous("w_severe", []float64{0, 1, 0, 0})
	replaced, err := tbl.Replace("Weakness", a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(replaced.Names(), []string{"id", "Fatigue", "w_mild", "w_severe", "BodyTemp"}) {
		t.Errorf("Replace names = %v", replaced.Names())
	}
	if _, err := tbl.Replace("Weakness", NewContinuous("BodyTemp", make([]float64, 4))); err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestTableMatrix(t *testing.T) {
	tbl := sampleTable(t)

	if _, err := tbl.Matrix([]string{"Fatigue"}); err == nil {
		t.Error("categorical column should not convert to a matrix")
	}
	if _, err := tbl.Matrix([]string{"BodyTemp"}); err == nil {
		t.Error("missing values should not convert to a matrix")
	}

	m, err := tbl.Rows([]int{0, 2}).Matrix([]string{"BodyTemp"})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 2 || c != 1 || m.At(1, 0) != 101.2 {
		t.Errorf("matrix = %v", m)
	}
}

func TestArrowRoundTrip(t *testing.T) {
	tbl := sampleTable(t)

	var buf bytes.Buffer
	if err := WriteArrow(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	got, err := ReadArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(tbl) {
		t.Errorf("round trip changed the table: %v vs %v", got.Names(), tbl.Names())
	}
	w, _ := got.Column("Weakness")
	if w.Kind != Ordinal || !slices.Equal(w.Levels, Severity) {
		t.Errorf("ordinal level order lost: %v %v", w.Kind, w.Levels)
	}
}

func TestReadArrowWithoutMetadata(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "temp", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "age", Type: arrow.PrimitiveTypes.Int64},
		{Name: "vomit", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "site", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Float64Builder).AppendValues([]float64{98.1, 0}, []bool{true, false})
	b.Field(1).(*array.Int64Builder).AppendValues([]int64{34, 51}, nil)
	b.Field(2).(*array.BooleanBuilder).AppendValues([]bool{true, false}, nil)
	b.Field(3).(*array.StringBuilder).AppendValues([]string{"north", "east"}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	temp, _ := tbl.Column("temp")
	age, _ := tbl.Column("age")
	vomit, _ := tbl.Column("vomit")
	site, _ := tbl.Column("site")
	if temp.Kind != Continuous || !temp.IsMissing(1) || age.Num[1] != 51 {
		t.Errorf("numeric mapping wrong: %v %v", temp.Num, age.Num)
	}
	if vomit.Kind != Binary || vomit.Label(0) != "Yes" || vomit.Label(1) != "No" {
		t.Errorf("boolean mapping wrong: %v %v", vomit.Levels, vomit.Codes)
	}
	if site.Kind != Nominal || !slices.Equal(site.Levels, []string{"east", "north"}) {
		t.Errorf("string mapping wrong: %v", site.Levels)
	}
}

func TestJoin(t *testing.T) {
	left, err := New(
		mustCategorical(t, "id", Nominal, []string{"a", "b", "c"}, []string{"a", "b", "c"}),
		NewContinuous("BodyTemp", []float64{98.6, 99.9, 100.4}),
	)
	if err != nil {
		t.Fatal(err)
	}
	right, err := New(
		mustCategorical(t, "id", Nominal, []string{"c", "a", "z"}, []string{"c", "a", "z"}),
		mustCategorical(t, "Nausea", Binary, YesNo, []string{"Yes", "No", "No"}),
	)
	if err != nil {
		t.Fatal(err)
	}

	joined, err := Join(left.WithRole(RoleTraining), right, "id")
	if err != nil {
		t.Fatal(err)
	}
	if joined.NRows() != 2 || !slices.Equal(joined.Names(), []string{"id", "BodyTemp", "Nausea"}) {
		t.Fatalf("joined %d rows, names %v", joined.NRows(), joined.Names())
	}
	nausea, _ := joined.Column("Nausea")
	if nausea.Label(0) != "No" || nausea.Label(1) != "Yes" {
		t.Errorf("rows matched incorrectly: %q %q", nausea.Label(0), nausea.Label(1))
	}
	if joined.Role() != RoleTraining {
		t.Error("join should keep the left role")
	}
}

func TestJoinDuplicateKey(t *testing.T) {
	left, _ := New(mustCategorical(t, "id", Nominal, []string{"a", "b"}, []string{"a", "b"}))
	right, _ := New(
		mustCategorical(t, "id", Nominal, []string{"a", "b"}, []string{"a", "a"}),
		NewContinuous("x", []float64{1, 2}),
	)

	_, err := Join(left, right, "id")
	var dup *errors.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.Value != "a" || dup.Side != "right" || dup.Count != 2 {
		t.Errorf("unexpected error detail %+v", dup)
	}
}

func TestSimulateSymptoms(t *testing.T) {
	a, err := SimulateSymptoms(300, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := SimulateSymptoms(300, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("same seed should give the same table")
	}
	c, _ := SimulateSymptoms(300, 8)
	if a.Equal(c) {
		t.Error("different seeds should give different tables")
	}

	for _, name := range []string{"Unique.Visit", "BodyTemp", "Nausea", "Weakness", "CoughYN2", "Hearing"} {
		if !a.Has(name) {
			t.Errorf("missing column %s", name)
		}
	}
	w, _ := a.Column("Weakness")
	if w.Kind != Nominal {
		t.Errorf("severity symptoms should start unordered, got %v", w.Kind)
	}
	hearing, _ := a.Column("Hearing")
	if counts := hearing.Counts(); counts[1] >= 50 {
		t.Errorf("Hearing should be rare, got %d Yes", counts[1])
	}
	temp, _ := a.Column("BodyTemp")
	for i, v := range temp.Num {
		if !math.IsNaN(v) && (v < 95 || v > 106) {
			t.Errorf("implausible temperature %v at row %d", v, i)
		}
	}
}
