// Package conformer generates 3D coordinates for a molecular graph with
// distance geometry: a bounds matrix derived from bond lengths, bond angles
// and van der Waals contacts is triangle-smoothed, random distances drawn from
// it are embedded through the metric matrix, and the result is refined by
// L-BFGS against the bounds. It also maps atoms between two copies of the
// same graph and superimposes conformers.
package conformer

import (
	"math"

	"github.com/turtacn/molx/internal/domain/molecule"
)

// ---------------------------------------------------------------------------
// Geometry constants
// ---------------------------------------------------------------------------

const (
	bondTolerance  = 0.01
	angleTolerance = 0.04
	// vdwScale shrinks van der Waals contact distances into lower bounds for
	// atoms three or more bonds apart.
	vdwScale     = 0.7
	defaultUpper = 1000.0
	fragmentGap  = 5.0
)

var bondOrderScale = map[molecule.BondType]float64{
	molecule.BondSingle:   1.0,
	molecule.BondDouble:   0.87,
	molecule.BondTriple:   0.78,
	molecule.BondAromatic: 0.92,
}

// bounds holds pairwise lower and upper distance limits.
type bounds struct {
	n     int
	lower []float64
	upper []float64
}

func newBounds(n int) *bounds {
	b := &bounds{n: n, lower: make([]float64, n*n), upper: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				b.upper[i*n+j] = defaultUpper
			}
		}
	}
	return b
}

func (b *bounds) l(i, j int) float64 { return b.lower[i*b.n+j] }
func (b *bounds) u(i, j int) float64 { return b.upper[i*b.n+j] }

func (b *bounds) set(i, j int, lo, hi float64) {
	b.lower[i*b.n+j], b.lower[j*b.n+i] = lo, lo
	b.upper[i*b.n+j], b.upper[j*b.n+i] = hi, hi
}

// bondLength estimates the equilibrium length of bond bi from covalent radii.
func bondLength(m *molecule.Molecule, bi int) float64 {
	bd := &m.Bonds[bi]
	r := molecule.CovalentRadius(m.Atoms[bd.Begin].AtomicNum) + molecule.CovalentRadius(m.Atoms[bd.End].AtomicNum)
	if s, ok := bondOrderScale[bd.Type]; ok {
		r *= s
	}
	return r
}

// idealAngle returns the bond angle at centre between bonds b1 and b2.
func idealAngle(m *molecule.Molecule, centre, b1, b2 int) float64 {
	s1, s2 := m.SmallestRingSize(b1), m.SmallestRingSize(b2)
	if s1 > 0 && s1 == s2 && s1 <= 5 {
		return math.Pi * float64(s1-2) / float64(s1)
	}
	switch m.Atoms[centre].Hybridization {
	case molecule.HybridSP:
		return math.Pi
	case molecule.HybridSP2:
		return 2 * math.Pi / 3
	}
	return 109.47 * math.Pi / 180
}

// buildBounds fills the bounds matrix for a sanitized molecule and smooths it.
func buildBounds(m *molecule.Molecule) *bounds {
	n := m.NumAtoms()
	b := newBounds(n)
	set := make([]bool, n*n)

	lengths := make([]float64, m.NumBonds())
	for bi, bd := range m.Bonds {
		lengths[bi] = bondLength(m, bi)
		b.set(bd.Begin, bd.End, lengths[bi]-bondTolerance, lengths[bi]+bondTolerance)
		set[bd.Begin*n+bd.End], set[bd.End*n+bd.Begin] = true, true
	}

	for c := 0; c < n; c++ {
		bonds := m.AtomBonds(c)
		for x := 0; x < len(bonds); x++ {
			for y := x + 1; y < len(bonds); y++ {
				i, j := m.Bonds[bonds[x]].Other(c), m.Bonds[bonds[y]].Other(c)
				if set[i*n+j] {
					continue
				}
				l1, l2 := lengths[bonds[x]], lengths[bonds[y]]
				theta := idealAngle(m, c, bonds[x], bonds[y])
				d := math.Sqrt(l1*l1 + l2*l2 - 2*l1*l2*math.Cos(theta))
				b.set(i, j, d-angleTolerance, d+angleTolerance)
				set[i*n+j], set[j*n+i] = true, true
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if set[i*n+j] {
				continue
			}
			lo := vdwScale * (molecule.VdwRadius(m.Atoms[i].AtomicNum) + molecule.VdwRadius(m.Atoms[j].AtomicNum))
			b.set(i, j, lo, defaultUpper)
		}
	}

	b.smooth()

	// Atoms in different fragments keep the placeholder upper bound; pack
	// fragments at contact distance instead.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if b.u(i, j) >= defaultUpper {
				b.set(i, j, b.l(i, j), b.l(i, j)+fragmentGap)
			}
		}
	}
	return b
}

// smooth applies triangle inequality smoothing (Floyd-Warshall on the upper
// bounds, then the matching lower bound pass). Inconsistent pairs are
// clamped so that lower never exceeds upper.
func (b *bounds) smooth() {
	n := b.n
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			uik := b.u(i, k)
			lik := b.l(i, k)
			for j := i + 1; j < n; j++ {
				if i == k || j == k {
					continue
				}
				ukj := b.u(k, j)
				if s := uik + ukj; s < b.u(i, j) {
					b.upper[i*n+j], b.upper[j*n+i] = s, s
				}
				lo := b.l(i, j)
				if d := lik - ukj; d > lo {
					lo = d
				}
				if d := b.l(k, j) - uik; d > lo {
					lo = d
				}
				if lo > b.u(i, j) {
					lo = b.u(i, j)
				}
				b.lower[i*n+j], b.lower[j*n+i] = lo, lo
			}
		}
	}
}
