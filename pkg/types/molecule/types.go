// Package molecule defines the record exchanged between the dataset builder,
// the tensor file store, the 3D transforms and the HTTP layer. A Record is a
// bag of named fields, each either an int64 or float32 tensor or a string.
// No chemistry lives here; only plain data that is safe to import from any
// layer.
package molecule

import (
	"encoding/json"
	"sort"

	"github.com/turtacn/molx/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Well-known field keys
// ─────────────────────────────────────────────────────────────────────────────

const (
	// KeyX is the node feature matrix, N×9 int64.
	KeyX = "x"
	// KeyEdgeIndex holds directed edges as E×2 int64 pairs of node indices.
	KeyEdgeIndex = "edge_index"
	// KeyEdgeAttr is the edge feature matrix, E×3 int64.
	KeyEdgeAttr = "edge_attr"
	// KeyNumNodes is the scalar node count.
	KeyNumNodes = "num_nodes"
	// KeyXYZ holds coordinates, N×3 float32.
	KeyXYZ = "xyz"
	// KeyZ holds atomic numbers, N int64.
	KeyZ = "z"
	// KeySMILES is the canonical SMILES string.
	KeySMILES = "smiles"
	// KeyProps is the vector of regression targets, T float32.
	KeyProps = "props"
	// KeyY is the scalar target selected by a 3D transform.
	KeyY = "y"
	// KeyDistIndex and KeyDistWeight carry predicted pairwise structure.
	KeyDistIndex  = "dist_index"
	KeyDistWeight = "dist_weight"
)

// ─────────────────────────────────────────────────────────────────────────────
// DType
// ─────────────────────────────────────────────────────────────────────────────

// DType is the element type of a field.
type DType uint8

const (
	DTypeInt64 DType = iota + 1
	DTypeFloat32
	DTypeString
)

// String returns the lowercase dtype name.
func (d DType) String() string {
	switch d {
	case DTypeInt64:
		return "int64"
	case DTypeFloat32:
		return "float32"
	case DTypeString:
		return "string"
	}
	return "unknown"
}

// IsValid reports whether d is one of the known dtypes.
func (d DType) IsValid() bool {
	return d >= DTypeInt64 && d <= DTypeString
}

// MarshalText encodes the dtype by name.
func (d DType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText parses a dtype name.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDType is the inverse of DType.String.
func ParseDType(s string) (DType, error) {
	switch s {
	case "int64":
		return DTypeInt64, nil
	case "float32":
		return DTypeFloat32, nil
	case "string":
		return DTypeString, nil
	}
	return 0, errors.Newf(errors.ErrCodeProcessedFileCorrupt, "unknown dtype %q", s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Field
// ─────────────────────────────────────────────────────────────────────────────

// Field is one named value of a record. Tensors are stored row-major; Shape
// is empty for a scalar. Strings use Str and have no shape.
type Field struct {
	DType  DType     `json:"dtype"`
	Shape  []int     `json:"shape,omitempty"`
	Ints   []int64   `json:"ints,omitempty"`
	Floats []float32 `json:"floats,omitempty"`
	Str    string    `json:"str,omitempty"`
}

// Scalar reports whether the field is a zero-dimensional tensor.
func (f *Field) Scalar() bool { return f.DType != DTypeString && len(f.Shape) == 0 }

// Rows is the extent of the first dimension; scalars count as one row.
func (f *Field) Rows() int {
	if len(f.Shape) == 0 {
		return 1
	}
	return f.Shape[0]
}

// RowWidth is the number of elements per row.
func (f *Field) RowWidth() int {
	w := 1
	for _, d := range f.Shape[min(1, len(f.Shape)):] {
		w *= d
	}
	return w
}

// Len is the number of stored elements (bytes for strings).
func (f *Field) Len() int {
	switch f.DType {
	case DTypeInt64:
		return len(f.Ints)
	case DTypeFloat32:
		return len(f.Floats)
	case DTypeString:
		return len(f.Str)
	}
	return 0
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	c := &Field{DType: f.DType, Str: f.Str}
	if f.Shape != nil {
		c.Shape = append([]int{}, f.Shape...)
	}
	if f.Ints != nil {
		c.Ints = append([]int64{}, f.Ints...)
	}
	if f.Floats != nil {
		c.Floats = append([]float32{}, f.Floats...)
	}
	return c
}

// Equal compares dtype, shape and contents.
func (f *Field) Equal(o *Field) bool {
	if f.DType != o.DType || f.Str != o.Str || len(f.Shape) != len(o.Shape) {
		return false
	}
	for i := range f.Shape {
		if f.Shape[i] != o.Shape[i] {
			return false
		}
	}
	if len(f.Ints) != len(o.Ints) || len(f.Floats) != len(o.Floats) {
		return false
	}
	for i := range f.Ints {
		if f.Ints[i] != o.Ints[i] {
			return false
		}
	}
	for i := range f.Floats {
		if f.Floats[i] != o.Floats[i] {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Record
// ─────────────────────────────────────────────────────────────────────────────

// Record is one molecule's graph snapshot.
type Record struct {
	fields map[string]*Field
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: map[string]*Field{}}
}

// Set stores f under key, replacing any previous value.
func (r *Record) Set(key string, f *Field) {
	if r.fields == nil {
		r.fields = map[string]*Field{}
	}
	r.fields[key] = f
}

// SetInt64 stores an int64 tensor. A nil shape means a flat vector.
func (r *Record) SetInt64(key string, shape []int, data []int64) {
	if shape == nil {
		shape = []int{len(data)}
	}
	r.Set(key, &Field{DType: DTypeInt64, Shape: shape, Ints: data})
}

// SetFloat32 stores a float32 tensor. A nil shape means a flat vector.
func (r *Record) SetFloat32(key string, shape []int, data []float32) {
	if shape == nil {
		shape = []int{len(data)}
	}
	r.Set(key, &Field{DType: DTypeFloat32, Shape: shape, Floats: data})
}

// SetInt64Scalar stores a zero-dimensional int64.
func (r *Record) SetInt64Scalar(key string, v int64) {
	r.Set(key, &Field{DType: DTypeInt64, Ints: []int64{v}})
}

// SetFloat32Scalar stores a zero-dimensional float32.
func (r *Record) SetFloat32Scalar(key string, v float32) {
	r.Set(key, &Field{DType: DTypeFloat32, Floats: []float32{v}})
}

// SetString stores a string field.
func (r *Record) SetString(key, v string) {
	r.Set(key, &Field{DType: DTypeString, Str: v})
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Delete removes key; missing keys are ignored.
func (r *Record) Delete(key string) { delete(r.fields, key) }

// Keys returns the field names in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of fields.
func (r *Record) Len() int { return len(r.fields) }

// Field returns the value under key or a DS_004 error.
func (r *Record) Field(key string) (*Field, error) {
	f, ok := r.fields[key]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeFieldNotFound, "record has no field %q", key)
	}
	return f, nil
}

func (r *Record) typed(key string, want DType) (*Field, error) {
	f, err := r.Field(key)
	if err != nil {
		return nil, err
	}
	if f.DType != want {
		return nil, errors.Newf(errors.ErrCodeValidation, "field %q is %s, not %s", key, f.DType, want)
	}
	return f, nil
}

// Int64s returns the flat contents of an int64 field.
func (r *Record) Int64s(key string) ([]int64, error) {
	f, err := r.typed(key, DTypeInt64)
	if err != nil {
		return nil, err
	}
	return f.Ints, nil
}

// Float32s returns the flat contents of a float32 field.
func (r *Record) Float32s(key string) ([]float32, error) {
	f, err := r.typed(key, DTypeFloat32)
	if err != nil {
		return nil, err
	}
	return f.Floats, nil
}

// String returns a string field.
func (r *Record) String(key string) (string, error) {
	f, err := r.typed(key, DTypeString)
	if err != nil {
		return "", err
	}
	return f.Str, nil
}

// NumNodes returns the num_nodes scalar.
func (r *Record) NumNodes() (int, error) {
	v, err := r.Int64s(KeyNumNodes)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, errors.Newf(errors.ErrCodeValidation, "num_nodes has %d elements", len(v))
	}
	return int(v[0]), nil
}

// Clone returns a deep copy; transforms work on clones so their input is
// never mutated.
func (r *Record) Clone() *Record {
	c := &Record{fields: make(map[string]*Field, len(r.fields))}
	for k, f := range r.fields {
		c.fields[k] = f.Clone()
	}
	return c
}

// Equal reports whether both records have the same keys and field values.
func (r *Record) Equal(o *Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for k, f := range r.fields {
		of, ok := o.fields[k]
		if !ok || !f.Equal(of) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as an object keyed by field name.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.fields)
}

// MarshalYAML renders the same field map as MarshalJSON.
func (r *Record) MarshalYAML() (interface{}, error) {
	if r.fields == nil {
		return map[string]*Field{}, nil
	}
	return r.fields, nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	fields := map[string]*Field{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode record")
	}
	for k, f := range fields {
		if f == nil || !f.DType.IsValid() {
			return errors.Newf(errors.ErrCodeSerialization, "field %q has no valid dtype", k)
		}
	}
	r.fields = fields
	return nil
}

// Validate checks the structural invariants of a graph record: every edge
// index is a valid node, edge_index and edge_attr have one row per directed
// edge, and xyz and z have one row per node. Absent optional fields are not
// checked.
func (r *Record) Validate() error {
	n, err := r.NumNodes()
	if err != nil {
		return err
	}
	if f, ok := r.fields[KeyEdgeIndex]; ok {
		if f.Len()%2 != 0 {
			return errors.Newf(errors.ErrCodeValidation, "edge_index has odd length %d", f.Len())
		}
		for _, v := range f.Ints {
			if v < 0 || v >= int64(n) {
				return errors.Newf(errors.ErrCodeValidation, "edge_index entry %d out of range [0, %d)", v, n)
			}
		}
		if a, ok := r.fields[KeyEdgeAttr]; ok && a.Rows() != f.Rows() {
			return errors.Newf(errors.ErrCodeValidation, "edge_attr has %d rows, edge_index %d", a.Rows(), f.Rows())
		}
	}
	for _, key := range []string{KeyX, KeyXYZ, KeyZ} {
		if f, ok := r.fields[key]; ok && f.Rows() != n {
			return errors.Newf(errors.ErrCodeValidation, "%s has %d rows, want %d", key, f.Rows(), n)
		}
	}
	return nil
}
