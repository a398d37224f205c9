package conformer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/pkg/errors"
)

// ErrAlign is returned when two structures cannot be put in correspondence.
var ErrAlign = errors.New(errors.ErrCodeConformerAlignFailed, "conformer alignment failed")

// MapAtoms returns, for every atom of ref, the index of the corresponding atom
// of other. Both molecules must have the same elements and connectivity;
// bond orders and aromatic flags are ignored, so a graph rebuilt from an edge
// list maps onto a fully perceived molecule.
func MapAtoms(ref, other *molecule.Molecule) ([]int, error) {
	if ref.NumAtoms() != other.NumAtoms() {
		return nil, ErrAlign.WithDetailf("atom counts differ: %d vs %d", ref.NumAtoms(), other.NumAtoms())
	}
	if ref.NumBonds() != other.NumBonds() {
		return nil, ErrAlign.WithDetailf("bond counts differ: %d vs %d", ref.NumBonds(), other.NumBonds())
	}
	rr := molecule.CanonicalRanks(ref, molecule.InvariantTopology)
	ro := molecule.CanonicalRanks(other, molecule.InvariantTopology)

	byRank := make([]int, other.NumAtoms())
	for j, r := range ro {
		byRank[r] = j
	}
	mapping := make([]int, ref.NumAtoms())
	for i, r := range rr {
		j := byRank[r]
		if ref.Atoms[i].AtomicNum != other.Atoms[j].AtomicNum {
			return nil, ErrAlign.WithDetailf("atom %d (%s) maps to %s", i, ref.Atoms[i].Symbol(), other.Atoms[j].Symbol())
		}
		mapping[i] = j
	}
	for _, b := range ref.Bonds {
		if other.BondBetween(mapping[b.Begin], mapping[b.End]) < 0 {
			return nil, ErrAlign.WithDetailf("bond %d-%d has no counterpart", b.Begin, b.End)
		}
	}
	return mapping, nil
}

// Reorder returns pos permuted so that out[i] = pos[mapping[i]].
func Reorder(pos []molecule.Vec3, mapping []int) []molecule.Vec3 {
	out := make([]molecule.Vec3, len(mapping))
	for i, j := range mapping {
		out[i] = pos[j]
	}
	return out
}

// Superimpose rotates and translates mobile onto target with the Kabsch
// algorithm and returns the moved coordinates and the resulting RMSD.
// Reflections are excluded.
func Superimpose(mobile, target []molecule.Vec3) ([]molecule.Vec3, float64, error) {
	n := len(mobile)
	if n != len(target) {
		return nil, 0, ErrAlign.WithDetailf("point counts differ: %d vs %d", n, len(target))
	}
	if n == 0 {
		return nil, 0, nil
	}
	cm, ct := centroid(mobile), centroid(target)

	p := mat.NewDense(n, 3, nil)
	q := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			p.Set(i, k, mobile[i][k]-cm[k])
			q.Set(i, k, target[i][k]-ct[k])
		}
	}

	var h mat.Dense
	h.Mul(p.T(), q)

	var svd mat.SVD
	if !svd.Factorize(&h, mat.SVDFull) {
		return nil, 0, ErrAlign.WithDetail("SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	fix := mat.NewDiagDense(3, []float64{1, 1, d})
	var rot, tmp mat.Dense
	tmp.Mul(&v, fix)
	rot.Mul(&tmp, u.T())

	out := make([]molecule.Vec3, n)
	var sq float64
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			var s float64
			for c := 0; c < 3; c++ {
				s += rot.At(k, c) * p.At(i, c)
			}
			out[i][k] = s + ct[k]
		}
		diff := out[i].Sub(target[i])
		sq += diff.Dot(diff)
	}
	return out, math.Sqrt(sq / float64(n)), nil
}

// RMSD is the root mean square deviation between two equally long point sets
// without any superposition.
func RMSD(a, b []molecule.Vec3) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	var sq float64
	for i := range a {
		d := a[i].Sub(b[i])
		sq += d.Dot(d)
	}
	return math.Sqrt(sq / float64(len(a)))
}

func centroid(pts []molecule.Vec3) molecule.Vec3 {
	var c molecule.Vec3
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
	}
	f := 1 / float64(len(pts))
	return molecule.Vec3{c[0] * f, c[1] * f, c[2] * f}
}
