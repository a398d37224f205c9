package molecule

import (
	"fmt"
	"math"
	"sort"

	"github.com/turtacn/molx/pkg/errors"
)

// ErrSanitize is the sentinel for molecules whose perception failed.
var ErrSanitize = errors.New(errors.ErrCodeMoleculeSanitizeFailed, "molecule sanitization failed")

// ErrValence is returned when an atom carries more bonds than allowed.
var ErrValence = errors.New(errors.ErrCodeMoleculeValenceInvalid, "explicit valence exceeds the allowed maximum")

// Sanitize runs the full perception pipeline in place:
//
//  1. valence check and implicit hydrogen counts
//  2. ring membership and smallest rings
//  3. aromaticity (4n+2 over smallest rings and fused ring pairs)
//  4. conjugation and hybridization
//  5. tetrahedral and double-bond stereo from the 3D conformer, when present
//
// Hydrogens present as atoms are kept.
func Sanitize(m *Molecule) error {
	for _, b := range m.Bonds {
		if b.Type == BondAromatic {
			m.Atoms[b.Begin].Aromatic = true
			m.Atoms[b.End].Aromatic = true
		}
	}
	if err := m.assignImplicitHs(); err != nil {
		return err
	}
	m.perceiveRings()
	if err := m.perceiveAromaticity(); err != nil {
		return err
	}
	m.perceiveConjugation()
	m.perceiveHybridization()
	if m.Has3D {
		m.perceiveStereoFrom3D()
	}
	m.sanitized = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Valence
// ─────────────────────────────────────────────────────────────────────────────

func (m *Molecule) assignImplicitHs() error {
	for i := range m.Atoms {
		a := &m.Atoms[i]
		ev := m.ExplicitValence(i) + a.ExplicitHs
		if maxV, ok := maxValence(a.AtomicNum, a.Charge); ok {
			if ev+a.Radicals > maxV {
				return ErrValence.WithDetailf("atom %d (%s) has valence %d, maximum %d", i+1, a.Symbol(), ev, maxV)
			}
		}
		if a.NoImplicit {
			a.ImplicitHs = 0
			continue
		}
		a.ImplicitHs = ImplicitHydrogens(a.AtomicNum, a.Charge, a.Radicals, a.Aromatic, ev)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aromaticity
// ─────────────────────────────────────────────────────────────────────────────

// piElectrons returns the electrons atom i donates to ring, or -1 when the
// atom cannot take part in an aromatic system.
func (m *Molecule) piElectrons(i int) int {
	a := &m.Atoms[i]
	if a.Aromatic {
		return m.aromaticDonation(i)
	}
	if m.TotalDegree(i) > 3 {
		return -1
	}
	doubles, exoDoubleToHetero := 0, false
	for _, bi := range m.AtomBonds(i) {
		b := &m.Bonds[bi]
		j := b.Other(i)
		switch b.Type {
		case BondTriple:
			return -1
		case BondDouble:
			if !b.InRing {
				if isHetero(m.Atoms[j].AtomicNum) {
					exoDoubleToHetero = true
					continue
				}
				return -1
			}
			doubles++
		case BondAromatic:
			doubles++
		}
	}
	if doubles > 1 {
		return -1
	}
	if doubles == 1 {
		return 1
	}
	if exoDoubleToHetero {
		return 0
	}
	switch a.AtomicNum {
	case 6:
		switch a.Charge {
		case -1:
			return 2
		case 1:
			return 0
		}
		return -1
	case 7, 15:
		if a.Charge == 0 && m.TotalDegree(i) <= 3 {
			return 2
		}
	case 8, 16, 34:
		if a.Charge == 0 && m.TotalDegree(i) == 2 {
			return 2
		}
	case 5:
		if a.Charge == 0 {
			return 0
		}
	}
	return -1
}

// aromaticDonation handles atoms that already carry an aromatic flag (SMILES
// lowercase or MDL bond order 4).
func (m *Molecule) aromaticDonation(i int) int {
	a := &m.Atoms[i]
	switch a.AtomicNum {
	case 6:
		if a.Charge == -1 {
			return 2
		}
		if a.Charge == 1 {
			return 0
		}
		for _, bi := range m.AtomBonds(i) {
			b := &m.Bonds[bi]
			if b.Type == BondDouble && !b.InRing && isHetero(m.Atoms[b.Other(i)].AtomicNum) {
				return 0
			}
		}
		return 1
	case 7, 15:
		if m.TotalDegree(i) == 3 && a.Charge == 0 {
			return 2
		}
		return 1
	case 8, 16, 34:
		if a.Charge == 1 {
			return 1
		}
		return 2
	case 5:
		return 0
	}
	return 1
}

func isHetero(z int) bool {
	return z != 6 && z != 1
}

func isHuckel(e int) bool {
	return e >= 2 && (e-2)%4 == 0
}

func (m *Molecule) perceiveAromaticity() error {
	aromaticRing := make([]bool, len(m.rings))
	for ri, ring := range m.rings {
		e, ok := m.ringElectrons(ring)
		aromaticRing[ri] = ok && isHuckel(e)
	}

	// Fused pairs that fail individually can still be aromatic as a whole
	// (azulene-like 10 electron envelopes).
	for x := range m.rings {
		for y := x + 1; y < len(m.rings); y++ {
			if aromaticRing[x] && aromaticRing[y] {
				continue
			}
			union, shared := fuseRings(m.rings[x], m.rings[y])
			if shared != 2 {
				continue
			}
			if e, ok := m.ringElectrons(union); ok && isHuckel(e) {
				aromaticRing[x], aromaticRing[y] = true, true
			}
		}
	}

	for ri, ring := range m.rings {
		if !aromaticRing[ri] {
			continue
		}
		for _, a := range ring {
			m.Atoms[a].Aromatic = true
		}
		for _, bi := range m.ringBondIndices(ring) {
			m.Bonds[bi].Type = BondAromatic
		}
	}

	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if b.Type != BondAromatic {
			continue
		}
		if !b.InRing {
			return ErrSanitize.WithDetailf("non-ring bond %d-%d marked aromatic", b.Begin+1, b.End+1)
		}
		m.Atoms[b.Begin].Aromatic = true
		m.Atoms[b.End].Aromatic = true
	}
	for i := range m.Atoms {
		if m.Atoms[i].Aromatic && !m.Atoms[i].InRing {
			return ErrSanitize.WithDetailf("non-ring atom %d marked aromatic", i+1)
		}
	}
	return nil
}

// ringElectrons sums the pi electrons over atoms; ok is false when any atom
// is ineligible.
func (m *Molecule) ringElectrons(atoms []int) (int, bool) {
	total := 0
	for _, a := range atoms {
		e := m.piElectrons(a)
		if e < 0 {
			return 0, false
		}
		total += e
	}
	return total, true
}

// fuseRings returns the atom union of two rings and the number of shared atoms.
func fuseRings(a, b []int) ([]int, int) {
	in := make(map[int]bool, len(a))
	for _, x := range a {
		in[x] = true
	}
	union := append([]int(nil), a...)
	shared := 0
	for _, x := range b {
		if in[x] {
			shared++
			continue
		}
		union = append(union, x)
	}
	return union, shared
}

// ─────────────────────────────────────────────────────────────────────────────
// Conjugation and hybridization
// ─────────────────────────────────────────────────────────────────────────────

// hasPi reports whether atom i has a multiple or aromatic bond other than skip.
func (m *Molecule) hasPi(i, skip int) bool {
	for _, bi := range m.AtomBonds(i) {
		if bi == skip {
			continue
		}
		switch m.Bonds[bi].Type {
		case BondDouble, BondTriple, BondAromatic:
			return true
		}
	}
	return false
}

// hasLonePair reports whether atom i can donate a lone pair to an adjacent
// pi system.
func (m *Molecule) hasLonePair(i int) bool {
	a := &m.Atoms[i]
	conn := m.TotalDegree(i)
	switch a.AtomicNum {
	case 7, 15, 33:
		return a.Charge <= 0 && conn <= 3
	case 8, 16, 34:
		return a.Charge <= 0 && conn <= 2
	case 9, 17, 35, 53:
		return a.Charge == 0 && conn <= 1
	case 6:
		return a.Charge < 0 && conn <= 3
	}
	return false
}

func (m *Molecule) perceiveConjugation() {
	for bi := range m.Bonds {
		m.Bonds[bi].Conjugated = m.Bonds[bi].Type == BondAromatic
	}
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if b.Type != BondSingle {
			continue
		}
		pa, pb := m.hasPi(b.Begin, bi), m.hasPi(b.End, bi)
		if !pa && !pb {
			continue
		}
		okA := pa || m.hasLonePair(b.Begin)
		okB := pb || m.hasLonePair(b.End)
		if okA && okB {
			b.Conjugated = true
		}
	}
	// A multiple bond is conjugated when a conjugated single bond touches it.
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if b.Type != BondDouble && b.Type != BondTriple {
			continue
		}
		for _, end := range []int{b.Begin, b.End} {
			for _, nb := range m.AtomBonds(end) {
				if nb != bi && m.Bonds[nb].Type == BondSingle && m.Bonds[nb].Conjugated {
					b.Conjugated = true
				}
			}
		}
	}
}

func (m *Molecule) perceiveHybridization() {
	for i := range m.Atoms {
		m.Atoms[i].Hybridization = m.hybridization(i)
	}
}

func (m *Molecule) hybridization(i int) Hybridization {
	a := &m.Atoms[i]
	if a.AtomicNum == 1 {
		return HybridS
	}
	if !isMainGroup(a.AtomicNum) || a.AtomicNum == 2 {
		return HybridOther
	}
	doubles, triples, aromatic, conjugated := 0, 0, false, false
	for _, bi := range m.AtomBonds(i) {
		b := &m.Bonds[bi]
		switch b.Type {
		case BondDouble:
			doubles++
		case BondTriple:
			triples++
		case BondAromatic:
			aromatic = true
		}
		if b.Conjugated {
			conjugated = true
		}
	}
	conn := m.TotalDegree(i)
	switch {
	case triples > 0 || doubles >= 2 && conn <= 2:
		return HybridSP
	case conn >= 6:
		return HybridSP3D2
	case conn == 5:
		return HybridSP3D
	case doubles > 0 || aromatic:
		return HybridSP2
	case conjugated && m.hasLonePair(i):
		return HybridSP2
	case a.AtomicNum == 6 && a.Charge == 1 && conn == 3:
		return HybridSP2
	}
	return HybridSP3
}

// ─────────────────────────────────────────────────────────────────────────────
// Stereo from 3D
// ─────────────────────────────────────────────────────────────────────────────

func (m *Molecule) perceiveStereoFrom3D() {
	classes := SymmetryClasses(m, InvariantPriority)
	for i := range m.Atoms {
		m.Atoms[i].Chirality = m.tetrahedralFrom3D(i, classes)
	}
	for bi := range m.Bonds {
		m.Bonds[bi].Stereo = m.doubleBondFrom3D(bi, classes)
	}
}

// tetrahedralFrom3D tags sp3 centres whose four substituents are pairwise
// distinguishable.
func (m *Molecule) tetrahedralFrom3D(i int, classes []int) ChiralTag {
	a := &m.Atoms[i]
	if a.Hybridization != HybridSP3 || m.TotalDegree(i) != 4 {
		return ChiralUnspecified
	}
	nbs := m.Neighbors(i)
	if len(nbs) < 3 || m.TotalHs(i) > 1 {
		return ChiralUnspecified
	}
	seen := map[int]bool{}
	for _, j := range nbs {
		if seen[classes[j]] {
			return ChiralUnspecified
		}
		seen[classes[j]] = true
	}
	// An implicit hydrogen must differ from every explicit neighbour.
	if len(nbs) == 3 {
		for _, j := range nbs {
			if m.Atoms[j].AtomicNum == 1 && m.Degree(j) == 1 {
				return ChiralUnspecified
			}
		}
	}

	c := a.Pos
	v0 := m.Atoms[nbs[0]].Pos.Sub(c)
	v1 := m.Atoms[nbs[1]].Pos.Sub(c)
	v2 := m.Atoms[nbs[2]].Pos.Sub(c)
	var v3 Vec3
	if len(nbs) == 4 {
		v3 = m.Atoms[nbs[3]].Pos.Sub(c)
	} else {
		// Place the implicit hydrogen opposite the three explicit neighbours.
		sum := Vec3{v0[0] + v1[0] + v2[0], v0[1] + v1[1] + v2[1], v0[2] + v1[2] + v2[2]}
		v3 = Vec3{-sum[0], -sum[1], -sum[2]}
	}
	normal := v2.Sub(v1).Cross(v3.Sub(v1))
	vol := normal.Dot(v0)
	const eps = 1e-3
	switch {
	case vol > eps:
		return ChiralCCW
	case vol < -eps:
		return ChiralCW
	}
	return ChiralUnspecified
}

// doubleBondFrom3D assigns Z/E to an acyclic (or large-ring) double bond
// whose ends each carry distinguishable substituents.
func (m *Molecule) doubleBondFrom3D(bi int, classes []int) BondStereo {
	b := &m.Bonds[bi]
	if b.Type != BondDouble {
		return StereoNone
	}
	if b.InRing && m.SmallestRingSize(bi) < 8 {
		return StereoNone
	}
	ra, okA := m.prioritySubstituent(b.Begin, b.End, classes)
	rb, okB := m.prioritySubstituent(b.End, b.Begin, classes)
	if !okA || !okB {
		return StereoNone
	}
	d := dihedral(m.Atoms[ra].Pos, m.Atoms[b.Begin].Pos, m.Atoms[b.End].Pos, m.Atoms[rb].Pos)
	if math.IsNaN(d) {
		return StereoNone
	}
	if math.Abs(d) < math.Pi/2 {
		return StereoZ
	}
	return StereoE
}

// prioritySubstituent picks the highest-priority neighbour of end other than
// partner. ok is false when the end has no stereo-relevant substituent or two
// indistinguishable ones.
func (m *Molecule) prioritySubstituent(end, partner int, classes []int) (int, bool) {
	var subs []int
	for _, j := range m.Neighbors(end) {
		if j != partner {
			subs = append(subs, j)
		}
	}
	switch len(subs) {
	case 1:
		if m.Atoms[end].Hybridization == HybridSP {
			return 0, false
		}
		return subs[0], true
	case 2:
		if classes[subs[0]] == classes[subs[1]] {
			return 0, false
		}
		sort.Slice(subs, func(x, y int) bool { return classes[subs[x]] > classes[subs[y]] })
		return subs[0], true
	}
	return 0, false
}

// dihedral returns the torsion angle p0-p1-p2-p3 in radians.
func dihedral(p0, p1, p2, p3 Vec3) float64 {
	b0 := p0.Sub(p1)
	b1 := p2.Sub(p1)
	b2 := p3.Sub(p2)
	n1 := b1.Norm()
	if n1 == 0 {
		return math.NaN()
	}
	u := Vec3{b1[0] / n1, b1[1] / n1, b1[2] / n1}
	v := b0.Sub(scale(u, b0.Dot(u)))
	w := b2.Sub(scale(u, b2.Dot(u)))
	x := v.Dot(w)
	y := u.Cross(v).Dot(w)
	return math.Atan2(y, x)
}

func scale(v Vec3, s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

// String summarises the molecule for logs.
func (m *Molecule) String() string {
	return fmt.Sprintf("Molecule(%s, atoms=%d, bonds=%d)", m.Formula(), len(m.Atoms), len(m.Bonds))
}
