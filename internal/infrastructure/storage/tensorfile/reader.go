package tensorfile

import (
	"encoding/binary"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// maxHeaderBytes bounds the header read on Open.
const maxHeaderBytes = 16 << 20

// File is an opened tensor file. It is safe for concurrent use as long as
// the underlying ReaderAt is.
type File struct {
	r         io.ReaderAt
	size      int64
	n         int
	buildID   string
	cols      []Column
	byName    map[string]int
	dataStart int64
}

// Open reads the preamble and header of a tensor file of the given size.
// No column data is read.
func Open(r io.ReaderAt, size int64) (*File, error) {
	if size < preambleSize {
		return nil, ErrCorrupt.WithDetailf("file of %d bytes is shorter than the preamble", size)
	}
	var pre [preambleSize]byte
	if _, err := r.ReadAt(pre[:], 0); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "read preamble")
	}
	if string(pre[:len(Magic)]) != Magic {
		return nil, ErrCorrupt.WithDetail("bad magic")
	}
	hlen := binary.LittleEndian.Uint64(pre[len(Magic):])
	if hlen > maxHeaderBytes || int64(hlen) > size-preambleSize {
		return nil, ErrCorrupt.WithDetailf("header length %d exceeds file", hlen)
	}
	hdr := make([]byte, hlen)
	if _, err := r.ReadAt(hdr, preambleSize); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "read header")
	}

	f := &File{r: r, size: size, byName: map[string]int{}, dataStart: preambleSize + int64(hlen)}
	if err := f.decodeHeader(hdr); err != nil {
		return nil, err
	}
	for i := range f.cols {
		c := &f.cols[i]
		end := f.dataStart + c.slicesOff + int64(f.n+1)*sliceWidth
		if c.dataOff+c.DataBytes != c.slicesOff || end > size {
			return nil, ErrCorrupt.WithDetailf("column %q extends past end of file", c.Name)
		}
		if c.DataBytes != c.TotalRows*c.rowWidth()*elemSize(c.DType) {
			return nil, ErrCorrupt.WithDetailf("column %q size does not match its row count", c.Name)
		}
		f.byName[c.Name] = i
	}
	return f, nil
}

func (f *File) decodeHeader(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrCorrupt.WithDetail("header tag")
		}
		b = b[n:]
		switch {
		case num == hdrNumRecords && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrCorrupt.WithDetail("record count")
			}
			f.n = int(v)
			b = b[n:]
		case num == hdrColumn && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ErrCorrupt.WithDetail("column entry")
			}
			c, err := decodeColumn(v)
			if err != nil {
				return err
			}
			f.cols = append(f.cols, c)
			b = b[n:]
		case num == hdrBuildID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ErrCorrupt.WithDetail("build id")
			}
			f.buildID = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrCorrupt.WithDetailf("header field %d", num)
			}
			b = b[n:]
		}
	}
	return nil
}

func decodeColumn(b []byte) (Column, error) {
	var c Column
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, ErrCorrupt.WithDetail("column tag")
		}
		b = b[n:]
		if num == colName && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, ErrCorrupt.WithDetail("column name")
			}
			c.Name = string(v)
			b = b[n:]
			continue
		}
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, ErrCorrupt.WithDetailf("column field %d", num)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return c, ErrCorrupt.WithDetailf("column field %d", num)
		}
		b = b[n:]
		switch num {
		case colDType:
			c.DType = mtypes.DType(v)
		case colScalar:
			c.Scalar = protowire.DecodeBool(v)
		case colRowShape:
			c.RowShape = append(c.RowShape, int(v))
		case colDataOff:
			c.dataOff = int64(v)
		case colDataLen:
			c.DataBytes = int64(v)
		case colSlicesOff:
			c.slicesOff = int64(v)
		case colTotalRows:
			c.TotalRows = int64(v)
		}
	}
	if c.Name == "" || !c.DType.IsValid() {
		return c, ErrCorrupt.WithDetailf("column %q has dtype %d", c.Name, c.DType)
	}
	return c, nil
}

// Len is the number of records.
func (f *File) Len() int { return f.n }

// Size is the file size in bytes.
func (f *File) Size() int64 { return f.size }

// BuildID returns the id stored by the writer.
func (f *File) BuildID() string { return f.buildID }

// Columns returns a copy of the column descriptors in storage order.
func (f *File) Columns() []Column {
	out := make([]Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// HasColumn reports whether a column named name exists.
func (f *File) HasColumn(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// Get reconstructs record i from ranged reads of every column.
func (f *File) Get(i int) (*mtypes.Record, error) {
	if i < 0 || i >= f.n {
		return nil, ErrOutOfRange.WithDetailf("index %d, len %d", i, f.n)
	}
	r := mtypes.NewRecord()
	for ci := range f.cols {
		c := &f.cols[ci]
		lo, hi, err := f.bounds(c, i)
		if err != nil {
			return nil, err
		}
		fld, err := f.readRows(c, lo, hi)
		if err != nil {
			return nil, err
		}
		r.Set(c.Name, fld)
	}
	return r, nil
}

// Column returns the named column concatenated over all records.
func (f *File) Column(name string) (*mtypes.Field, error) {
	ci, ok := f.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeFieldNotFound, "column %q not found", name)
	}
	c := &f.cols[ci]
	fld, err := f.readRows(c, 0, c.TotalRows)
	if err != nil {
		return nil, err
	}
	if c.Scalar {
		fld.Shape = []int{int(c.TotalRows)}
	}
	return fld, nil
}

// Slices returns the row boundaries of the named column.
func (f *File) Slices(name string) ([]int64, error) {
	ci, ok := f.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeFieldNotFound, "column %q not found", name)
	}
	c := &f.cols[ci]
	buf := make([]byte, (f.n+1)*sliceWidth)
	if err := f.readAt(buf, f.dataStart+c.slicesOff); err != nil {
		return nil, err
	}
	out := make([]int64, f.n+1)
	for k := range out {
		out[k] = int64(binary.LittleEndian.Uint64(buf[k*sliceWidth:]))
	}
	return out, nil
}

func (f *File) bounds(c *Column, i int) (int64, int64, error) {
	var buf [2 * sliceWidth]byte
	if err := f.readAt(buf[:], f.dataStart+c.slicesOff+int64(i)*sliceWidth); err != nil {
		return 0, 0, err
	}
	lo := int64(binary.LittleEndian.Uint64(buf[:sliceWidth]))
	hi := int64(binary.LittleEndian.Uint64(buf[sliceWidth:]))
	if lo < 0 || hi < lo || hi > c.TotalRows {
		return 0, 0, ErrCorrupt.WithDetailf("column %q record %d has rows [%d, %d)", c.Name, i, lo, hi)
	}
	return lo, hi, nil
}

func (f *File) readRows(c *Column, lo, hi int64) (*mtypes.Field, error) {
	width := c.rowWidth()
	es := elemSize(c.DType)
	buf := make([]byte, (hi-lo)*width*es)
	if err := f.readAt(buf, f.dataStart+c.dataOff+lo*width*es); err != nil {
		return nil, err
	}

	fld := &mtypes.Field{DType: c.DType}
	if !c.Scalar && c.DType != mtypes.DTypeString {
		fld.Shape = append([]int{int(hi - lo)}, c.RowShape...)
	}
	switch c.DType {
	case mtypes.DTypeString:
		fld.Str = string(buf)
	case mtypes.DTypeInt64:
		fld.Ints = make([]int64, len(buf)/8)
		for k := range fld.Ints {
			fld.Ints[k] = int64(binary.LittleEndian.Uint64(buf[8*k:]))
		}
	case mtypes.DTypeFloat32:
		fld.Floats = make([]float32, len(buf)/4)
		for k := range fld.Floats {
			fld.Floats[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*k:]))
		}
	}
	return fld, nil
}

func (f *File) readAt(p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	n, err := f.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return ErrCorrupt.WithDetailf("short read at offset %d", off)
	}
	return errors.Wrap(err, errors.ErrCodeStorage, "ranged read")
}
