package molgraph

import (
	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Graph is the integer-coded form of one molecule.
type Graph struct {
	// NodeFeat has one row of NumAtomFeatures per atom.
	NodeFeat [][NumAtomFeatures]int64
	// EdgeIndex lists directed edges; bond k yields rows 2k (begin→end) and
	// 2k+1 (end→begin).
	EdgeIndex [][2]int64
	// EdgeFeat has one row of NumBondFeatures per directed edge.
	EdgeFeat [][NumBondFeatures]int64
	NumNodes int
}

// ErrNotSanitized is returned when encoding a molecule whose perception has
// not run; the features would be meaningless.
var ErrNotSanitized = errors.New(errors.ErrCodeGraphEncodingFailed, "molecule must be sanitized before encoding")

// Encode converts a sanitized molecule into a Graph. It is a pure function of
// the molecule: repeated calls give identical output.
func Encode(m *molecule.Molecule) (*Graph, error) {
	if m == nil || !m.Sanitized() {
		return nil, ErrNotSanitized
	}
	g := &Graph{
		NodeFeat:  make([][NumAtomFeatures]int64, m.NumAtoms()),
		EdgeIndex: make([][2]int64, 0, 2*m.NumBonds()),
		EdgeFeat:  make([][NumBondFeatures]int64, 0, 2*m.NumBonds()),
		NumNodes:  m.NumAtoms(),
	}
	for i := range m.Atoms {
		g.NodeFeat[i] = atomFeatures(m, i)
	}
	for bi, b := range m.Bonds {
		f := bondFeatures(m, bi)
		g.EdgeIndex = append(g.EdgeIndex, [2]int64{int64(b.Begin), int64(b.End)}, [2]int64{int64(b.End), int64(b.Begin)})
		g.EdgeFeat = append(g.EdgeFeat, f, f)
	}
	return g, nil
}

// NumEdges is the number of directed edges.
func (g *Graph) NumEdges() int { return len(g.EdgeIndex) }

// FlatNodeFeat returns NodeFeat row-major.
func (g *Graph) FlatNodeFeat() []int64 {
	out := make([]int64, 0, len(g.NodeFeat)*NumAtomFeatures)
	for _, row := range g.NodeFeat {
		out = append(out, row[:]...)
	}
	return out
}

// FlatEdgeIndex returns EdgeIndex row-major.
func (g *Graph) FlatEdgeIndex() []int64 {
	out := make([]int64, 0, len(g.EdgeIndex)*2)
	for _, e := range g.EdgeIndex {
		out = append(out, e[0], e[1])
	}
	return out
}

// FlatEdgeFeat returns EdgeFeat row-major.
func (g *Graph) FlatEdgeFeat() []int64 {
	out := make([]int64, 0, len(g.EdgeFeat)*NumBondFeatures)
	for _, row := range g.EdgeFeat {
		out = append(out, row[:]...)
	}
	return out
}

// Fill writes x, edge_index, edge_attr and num_nodes into r.
func (g *Graph) Fill(r *mtypes.Record) {
	r.SetInt64(mtypes.KeyX, []int{g.NumNodes, NumAtomFeatures}, g.FlatNodeFeat())
	r.SetInt64(mtypes.KeyEdgeIndex, []int{g.NumEdges(), 2}, g.FlatEdgeIndex())
	r.SetInt64(mtypes.KeyEdgeAttr, []int{g.NumEdges(), NumBondFeatures}, g.FlatEdgeFeat())
	r.SetInt64Scalar(mtypes.KeyNumNodes, int64(g.NumNodes))
}
