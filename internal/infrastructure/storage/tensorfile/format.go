// Package tensorfile implements the on-disk layout of one processed split.
//
// A file starts with an eight byte magic, a little-endian uint64 header
// length and a protowire-encoded header describing every column. The data
// region that follows holds, per column, the concatenated little-endian
// values of all records and a slices vector of len+1 int64 row boundaries.
// A single record is recovered with two small ranged reads per column, so a
// split is never deserialized as a whole.
package tensorfile

import (
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Magic identifies a tensor file and its layout version.
const Magic = "MOLX3D\x00\x01"

const (
	preambleSize = int64(len(Magic) + 8)
	sliceWidth   = 8
)

// header field numbers
const (
	hdrNumRecords = 1
	hdrColumn     = 2
	hdrBuildID    = 3

	colName      = 1
	colDType     = 2
	colScalar    = 3
	colRowShape  = 4
	colDataOff   = 5
	colDataLen   = 6
	colSlicesOff = 7
	colTotalRows = 8
)

var (
	// ErrCorrupt is returned for files that do not follow the layout.
	ErrCorrupt = errors.New(errors.ErrCodeProcessedFileCorrupt, "processed file is corrupt")
	// ErrOutOfRange is returned by Get for an index outside [0, Len).
	ErrOutOfRange = errors.New(errors.ErrCodeRecordOutOfRange, "record index out of range")
	// ErrInconsistent is returned by the writer when records disagree on a
	// field's dtype, trailing shape or presence.
	ErrInconsistent = errors.New(errors.ErrCodeValidation, "records cannot be collated")
)

// Column describes one collated field.
type Column struct {
	Name  string       `json:"name"`
	DType mtypes.DType `json:"dtype"`
	// Scalar columns hold exactly one value per record and reconstruct with
	// an empty shape.
	Scalar bool `json:"scalar"`
	// RowShape is the shape of a single row, i.e. the field shape without
	// its leading (concatenation) dimension.
	RowShape []int `json:"row_shape,omitempty"`
	// TotalRows is the length of the concatenation dimension over all records.
	TotalRows int64 `json:"total_rows"`
	// DataBytes is the size of the value block.
	DataBytes int64 `json:"data_bytes"`

	dataOff   int64
	slicesOff int64
}

// rowWidth is the number of elements per row.
func (c *Column) rowWidth() int64 {
	w := int64(1)
	for _, d := range c.RowShape {
		w *= int64(d)
	}
	return w
}

// elemSize is the byte width of one element.
func elemSize(d mtypes.DType) int64 {
	switch d {
	case mtypes.DTypeInt64:
		return 8
	case mtypes.DTypeFloat32:
		return 4
	}
	return 1
}

// columnOf derives the column layout of field f.
func columnOf(name string, f *mtypes.Field) Column {
	c := Column{Name: name, DType: f.DType}
	switch {
	case f.DType == mtypes.DTypeString:
	case f.Scalar():
		c.Scalar = true
	default:
		if len(f.Shape) > 1 {
			c.RowShape = append([]int{}, f.Shape[1:]...)
		}
	}
	return c
}

// rowsOf is the number of rows f contributes to its column. Strings count
// bytes.
func rowsOf(f *mtypes.Field) int64 {
	if f.DType == mtypes.DTypeString {
		return int64(len(f.Str))
	}
	return int64(f.Rows())
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
