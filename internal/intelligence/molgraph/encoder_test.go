package molgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

func parse(t *testing.T, s string) *molecule.Molecule {
	t.Helper()
	m, err := molecule.ParseSMILES(s)
	require.NoError(t, err)
	return m
}

func TestEncode_Ethanol(t *testing.T) {
	g, err := Encode(parse(t, "CCO"))
	require.NoError(t, err)

	assert.Equal(t, 3, g.NumNodes)
	assert.Equal(t, 4, g.NumEdges())
	assert.Equal(t, [][2]int64{{0, 1}, {1, 0}, {1, 2}, {2, 1}}, g.EdgeIndex)

	// Methyl carbon: Z=6, unspecified chirality, degree 4, neutral, 3 H,
	// no radicals, SP3, not aromatic, not in ring.
	assert.Equal(t, [NumAtomFeatures]int64{5, 0, 4, 5, 3, 0, 2, 0, 0}, g.NodeFeat[0])
	// Hydroxyl oxygen.
	assert.Equal(t, [NumAtomFeatures]int64{7, 0, 2, 5, 1, 0, 2, 0, 0}, g.NodeFeat[2])
	for _, f := range g.EdgeFeat {
		assert.Equal(t, [NumBondFeatures]int64{0, 0, 0}, f)
	}
}

func TestEncode_Benzene(t *testing.T) {
	g, err := Encode(parse(t, "c1ccccc1"))
	require.NoError(t, err)
	assert.Equal(t, 12, g.NumEdges())
	for _, row := range g.NodeFeat {
		assert.Equal(t, int64(1), row[6], "hybridization SP2")
		assert.Equal(t, int64(1), row[7], "aromatic")
		assert.Equal(t, int64(1), row[8], "in ring")
	}
	for _, f := range g.EdgeFeat {
		assert.Equal(t, [NumBondFeatures]int64{3, 0, 1}, f)
	}
}

func TestEncode_MiscSlots(t *testing.T) {
	m := parse(t, "[Fe+6]")
	g, err := Encode(m)
	require.NoError(t, err)
	row := g.NodeFeat[0]
	assert.Equal(t, int64(25), row[0])
	assert.Equal(t, int64(11), row[3], "charge +6 is out of vocabulary")
	assert.Equal(t, int64(5), row[6], "transition metal hybridization is misc")
	assert.Equal(t, 0, g.NumEdges())
}

func TestEncode_ExplicitHydrogens(t *testing.T) {
	m := molecule.AddHs(parse(t, "C"))
	g, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, 5, g.NumNodes)
	assert.Equal(t, 8, g.NumEdges())
	// Carbon keeps total degree 4 and now carries no hydrogen count.
	assert.Equal(t, int64(4), g.NodeFeat[0][2])
	assert.Equal(t, int64(0), g.NodeFeat[0][4])
	// Hydrogen hybridization S is outside the vocabulary.
	assert.Equal(t, int64(5), g.NodeFeat[1][6])
}

func TestEncode_Deterministic(t *testing.T) {
	m := parse(t, "CC(=O)Oc1ccccc1C(=O)O")
	a, err := Encode(m)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		b, err := Encode(m)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEncode_RequiresSanitize(t *testing.T) {
	m := molecule.New()
	m.AddAtom(molecule.Atom{AtomicNum: 6})
	_, err := Encode(m)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGraphEncodingFailed))
	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestGraph_Fill(t *testing.T) {
	g, err := Encode(parse(t, "C=O"))
	require.NoError(t, err)
	r := mtypes.NewRecord()
	g.Fill(r)

	require.NoError(t, r.Validate())
	x, err := r.Field(mtypes.KeyX)
	require.NoError(t, err)
	assert.Equal(t, []int{2, NumAtomFeatures}, x.Shape)
	ei, err := r.Int64s(mtypes.KeyEdgeIndex)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 1, 0}, ei)
	ea, err := r.Int64s(mtypes.KeyEdgeAttr)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 0, 1, 0, 0}, ea)
}

func TestFeatureDims(t *testing.T) {
	assert.Equal(t, []int{119, 5, 12, 12, 10, 6, 6, 2, 2}, AtomFeatureDims())
	assert.Equal(t, []int{5, 6, 2}, BondFeatureDims())
	d := Dims()
	assert.Len(t, d.Atom, NumAtomFeatures)
	assert.Len(t, d.Bond, NumBondFeatures)
}
