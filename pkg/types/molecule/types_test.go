package molecule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
)

func sampleRecord() *Record {
	r := NewRecord()
	r.SetInt64Scalar(KeyNumNodes, 3)
	r.SetInt64(KeyX, []int{3, 2}, []int64{5, 0, 7, 0, 5, 1})
	r.SetInt64(KeyEdgeIndex, []int{4, 2}, []int64{0, 1, 1, 0, 1, 2, 2, 1})
	r.SetInt64(KeyEdgeAttr, []int{4, 1}, []int64{0, 0, 1, 1})
	r.SetFloat32(KeyXYZ, []int{3, 3}, make([]float32, 9))
	r.SetInt64(KeyZ, nil, []int64{6, 8, 6})
	r.SetFloat32(KeyProps, nil, []float32{1.5, -2})
	r.SetString(KeySMILES, "COC")
	return r
}

func TestDType_RoundTrip(t *testing.T) {
	for _, d := range []DType{DTypeInt64, DTypeFloat32, DTypeString} {
		got, err := ParseDType(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
		assert.True(t, d.IsValid())
	}
	_, err := ParseDType("complex128")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProcessedFileCorrupt))
	assert.False(t, DType(0).IsValid())
}

func TestField_Geometry(t *testing.T) {
	r := sampleRecord()
	x, err := r.Field(KeyX)
	require.NoError(t, err)
	assert.Equal(t, 3, x.Rows())
	assert.Equal(t, 2, x.RowWidth())
	assert.False(t, x.Scalar())

	n, err := r.Field(KeyNumNodes)
	require.NoError(t, err)
	assert.True(t, n.Scalar())
	assert.Equal(t, 1, n.Rows())
	assert.Equal(t, 1, n.RowWidth())

	z, err := r.Field(KeyZ)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, z.Shape)
	assert.Equal(t, 1, z.RowWidth())
}

func TestRecord_FieldNotFound(t *testing.T) {
	r := sampleRecord()
	_, err := r.Field("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFieldNotFound))
	assert.True(t, errors.IsNotFound(err))

	_, err = r.Float32s(KeyX)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	require.True(t, r.Equal(c))

	c.Delete(KeyProps)
	xs, _ := c.Int64s(KeyX)
	xs[0] = 99
	assert.True(t, r.Has(KeyProps))
	orig, _ := r.Int64s(KeyX)
	assert.Equal(t, int64(5), orig[0])
	assert.False(t, r.Equal(c))
}

func TestRecord_Keys(t *testing.T) {
	r := sampleRecord()
	assert.Equal(t, []string{"edge_attr", "edge_index", "num_nodes", "props", "smiles", "x", "xyz", "z"}, r.Keys())
	assert.Equal(t, 8, r.Len())
}

func TestRecord_Validate(t *testing.T) {
	require.NoError(t, sampleRecord().Validate())

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"edge out of range", func(r *Record) {
			r.SetInt64(KeyEdgeIndex, []int{1, 2}, []int64{0, 3})
			r.SetInt64(KeyEdgeAttr, []int{1, 1}, []int64{0})
		}},
		{"edge attr rows", func(r *Record) { r.SetInt64(KeyEdgeAttr, []int{3, 1}, []int64{0, 0, 0}) }},
		{"xyz rows", func(r *Record) { r.SetFloat32(KeyXYZ, []int{2, 3}, make([]float32, 6)) }},
		{"missing num_nodes", func(r *Record) { r.Delete(KeyNumNodes) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecord()
			tt.mutate(r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestRecord_JSON(t *testing.T) {
	r := sampleRecord()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dtype":"float32"`)

	got := NewRecord()
	require.NoError(t, json.Unmarshal(data, got))
	assert.True(t, r.Equal(got))

	err = json.Unmarshal([]byte(`{"x":{"dtype":"complex"}}`), NewRecord())
	assert.Error(t, err)
}
