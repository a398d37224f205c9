package tensorfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Write collates records into one tensor file written to w and returns the
// number of bytes written. All records must carry the same fields with the
// same dtype and row shape. buildID is stored in the header and may be empty.
func Write(w io.Writer, records []*mtypes.Record, buildID string) (int64, error) {
	cols, err := layout(records)
	if err != nil {
		return 0, err
	}

	hdr := encodeHeader(len(records), cols, buildID)
	bw := bufio.NewWriterSize(w, 1<<20)
	cw := &countingWriter{w: bw}

	var pre [preambleSize]byte
	copy(pre[:], Magic)
	binary.LittleEndian.PutUint64(pre[len(Magic):], uint64(len(hdr)))
	if _, err := cw.Write(pre[:]); err != nil {
		return cw.n, errors.Wrap(err, errors.ErrCodeStorage, "write preamble")
	}
	if _, err := cw.Write(hdr); err != nil {
		return cw.n, errors.Wrap(err, errors.ErrCodeStorage, "write header")
	}

	for ci := range cols {
		c := &cols[ci]
		for _, r := range records {
			f, _ := r.Field(c.Name)
			if err := writeValues(cw, f); err != nil {
				return cw.n, errors.Wrapf(err, errors.ErrCodeStorage, "write column %s", c.Name)
			}
		}
		var buf [sliceWidth]byte
		var acc int64
		if _, err := cw.Write(buf[:]); err != nil {
			return cw.n, errors.Wrapf(err, errors.ErrCodeStorage, "write slices %s", c.Name)
		}
		for _, r := range records {
			f, _ := r.Field(c.Name)
			acc += rowsOf(f)
			binary.LittleEndian.PutUint64(buf[:], uint64(acc))
			if _, err := cw.Write(buf[:]); err != nil {
				return cw.n, errors.Wrapf(err, errors.ErrCodeStorage, "write slices %s", c.Name)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, errors.Wrap(err, errors.ErrCodeStorage, "flush tensor file")
	}
	return cw.n, nil
}

// layout checks that records are collatable and assigns every column its
// offsets within the data region.
func layout(records []*mtypes.Record) ([]Column, error) {
	if len(records) == 0 {
		return nil, nil
	}
	keys := records[0].Keys()
	cols := make([]Column, len(keys))
	for ci, k := range keys {
		f, _ := records[0].Field(k)
		cols[ci] = columnOf(k, f)
	}

	for i, r := range records {
		if r.Len() != len(keys) {
			return nil, ErrInconsistent.WithDetailf("record %d has fields %v, want %v", i, r.Keys(), keys)
		}
		for ci := range cols {
			c := &cols[ci]
			f, err := r.Field(c.Name)
			if err != nil {
				return nil, ErrInconsistent.WithDetailf("record %d lacks field %q", i, c.Name)
			}
			got := columnOf(c.Name, f)
			if got.DType != c.DType || got.Scalar != c.Scalar || !sameShape(got.RowShape, c.RowShape) {
				return nil, ErrInconsistent.WithDetailf("record %d field %q is %s%v, column is %s%v",
					i, c.Name, got.DType, got.RowShape, c.DType, c.RowShape)
			}
			if int64(f.Len()) != rowsOf(f)*c.rowWidth() {
				return nil, ErrInconsistent.WithDetailf("record %d field %q has %d values for shape %v", i, c.Name, f.Len(), f.Shape)
			}
			c.TotalRows += rowsOf(f)
		}
	}

	var off int64
	for ci := range cols {
		c := &cols[ci]
		c.DataBytes = c.TotalRows * c.rowWidth() * elemSize(c.DType)
		c.dataOff = off
		c.slicesOff = off + c.DataBytes
		off = c.slicesOff + int64(len(records)+1)*sliceWidth
	}
	return cols, nil
}

func encodeHeader(n int, cols []Column, buildID string) []byte {
	var b []byte
	b = protowire.AppendTag(b, hdrNumRecords, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n))
	for ci := range cols {
		c := &cols[ci]
		var cb []byte
		cb = protowire.AppendTag(cb, colName, protowire.BytesType)
		cb = protowire.AppendString(cb, c.Name)
		cb = protowire.AppendTag(cb, colDType, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.DType))
		cb = protowire.AppendTag(cb, colScalar, protowire.VarintType)
		cb = protowire.AppendVarint(cb, protowire.EncodeBool(c.Scalar))
		for _, d := range c.RowShape {
			cb = protowire.AppendTag(cb, colRowShape, protowire.VarintType)
			cb = protowire.AppendVarint(cb, uint64(d))
		}
		cb = protowire.AppendTag(cb, colDataOff, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.dataOff))
		cb = protowire.AppendTag(cb, colDataLen, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.DataBytes))
		cb = protowire.AppendTag(cb, colSlicesOff, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.slicesOff))
		cb = protowire.AppendTag(cb, colTotalRows, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.TotalRows))

		b = protowire.AppendTag(b, hdrColumn, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	if buildID != "" {
		b = protowire.AppendTag(b, hdrBuildID, protowire.BytesType)
		b = protowire.AppendString(b, buildID)
	}
	return b
}

func writeValues(w io.Writer, f *mtypes.Field) error {
	switch f.DType {
	case mtypes.DTypeString:
		_, err := io.WriteString(w, f.Str)
		return err
	case mtypes.DTypeInt64:
		buf := make([]byte, 8*len(f.Ints))
		for i, v := range f.Ints {
			binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
		}
		_, err := w.Write(buf)
		return err
	case mtypes.DTypeFloat32:
		buf := make([]byte, 4*len(f.Floats))
		for i, v := range f.Floats {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		_, err := w.Write(buf)
		return err
	}
	return errors.Newf(errors.ErrCodeValidation, "unsupported dtype %s", f.DType)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
