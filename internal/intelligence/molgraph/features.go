// Package molgraph turns a sanitized molecule into the integer-coded graph
// consumed by GNN models: one categorical row per atom, two directed edges per
// bond. The vocabularies follow the OGB molecule featurization, with an
// out-of-vocabulary ("misc") slot at the end of every list.
package molgraph

import (
	"github.com/turtacn/molx/internal/domain/molecule"
)

// ---------------------------------------------------------------------------
// Atom vocabularies
// ---------------------------------------------------------------------------
//
// Node feature columns (9, int64):
//   [0] atomic number 1..118, misc
//   [1] chirality tag (unspecified, CW, CCW, other), misc
//   [2] total degree 0..10, misc
//   [3] formal charge -5..5, misc
//   [4] total hydrogens 0..8, misc
//   [5] radical electrons 0..4, misc
//   [6] hybridization (SP, SP2, SP3, SP3D, SP3D2), misc
//   [7] aromatic 0/1
//   [8] in ring 0/1

const (
	atomicNumVocab     = 118 + 1
	chiralityVocab     = 4 + 1
	degreeVocab        = 11 + 1
	formalChargeVocab  = 11 + 1
	numHVocab          = 9 + 1
	radicalVocab       = 5 + 1
	hybridizationVocab = 5 + 1
	boolVocab          = 2

	// NumAtomFeatures is the width of the node feature matrix.
	NumAtomFeatures = 9
)

var chiralityList = []molecule.ChiralTag{
	molecule.ChiralUnspecified,
	molecule.ChiralCW,
	molecule.ChiralCCW,
	molecule.ChiralOther,
}

var hybridizationList = []molecule.Hybridization{
	molecule.HybridSP,
	molecule.HybridSP2,
	molecule.HybridSP3,
	molecule.HybridSP3D,
	molecule.HybridSP3D2,
}

// ---------------------------------------------------------------------------
// Bond vocabularies
// ---------------------------------------------------------------------------
//
// Edge feature columns (3, int64):
//   [0] bond type (single, double, triple, aromatic), misc
//   [1] stereo (none, Z, E, cis, trans, any)
//   [2] conjugated 0/1

const (
	bondTypeVocab = 4 + 1
	stereoVocab   = 6

	// NumBondFeatures is the width of the edge feature matrix.
	NumBondFeatures = 3
)

var bondTypeList = []molecule.BondType{
	molecule.BondSingle,
	molecule.BondDouble,
	molecule.BondTriple,
	molecule.BondAromatic,
}

var stereoList = []molecule.BondStereo{
	molecule.StereoNone,
	molecule.StereoZ,
	molecule.StereoE,
	molecule.StereoCis,
	molecule.StereoTrans,
	molecule.StereoAny,
}

// AtomFeatureDims returns the vocabulary size of each node feature column.
func AtomFeatureDims() []int {
	return []int{
		atomicNumVocab, chiralityVocab, degreeVocab, formalChargeVocab,
		numHVocab, radicalVocab, hybridizationVocab, boolVocab, boolVocab,
	}
}

// BondFeatureDims returns the vocabulary size of each edge feature column.
func BondFeatureDims() []int {
	return []int{bondTypeVocab, stereoVocab, boolVocab}
}

// FeatureDims bundles both vocabularies; the dataset manifest records it so
// models can size their embedding tables.
type FeatureDims struct {
	Atom []int `json:"atom"`
	Bond []int `json:"bond"`
}

// Dims returns the current FeatureDims.
func Dims() FeatureDims {
	return FeatureDims{Atom: AtomFeatureDims(), Bond: BondFeatureDims()}
}

// ---------------------------------------------------------------------------
// Index helpers
// ---------------------------------------------------------------------------

// rangeIndex maps v in [lo, hi] to v-lo and anything else to the misc slot.
func rangeIndex(v, lo, hi int) int64 {
	if v < lo || v > hi {
		return int64(hi - lo + 1)
	}
	return int64(v - lo)
}

// listIndex returns the position of v in list, or len(list) when absent.
func listIndex[T comparable](list []T, v T) int64 {
	for i, x := range list {
		if x == v {
			return int64(i)
		}
	}
	return int64(len(list))
}

func boolIndex(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// atomFeatures encodes atom i of a sanitized molecule.
func atomFeatures(m *molecule.Molecule, i int) [NumAtomFeatures]int64 {
	a := &m.Atoms[i]
	return [NumAtomFeatures]int64{
		rangeIndex(a.AtomicNum, 1, 118),
		listIndex(chiralityList, a.Chirality),
		rangeIndex(m.TotalDegree(i), 0, 10),
		rangeIndex(a.Charge, -5, 5),
		rangeIndex(m.TotalHs(i), 0, 8),
		rangeIndex(a.Radicals, 0, 4),
		listIndex(hybridizationList, a.Hybridization),
		boolIndex(a.Aromatic),
		boolIndex(a.InRing),
	}
}

// bondFeatures encodes bond bi.
func bondFeatures(m *molecule.Molecule, bi int) [NumBondFeatures]int64 {
	b := &m.Bonds[bi]
	return [NumBondFeatures]int64{
		listIndex(bondTypeList, b.Type),
		listIndex(stereoList, b.Stereo),
		boolIndex(b.Conjugated),
	}
}
