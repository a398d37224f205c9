// Package molecule holds the in-memory molecular graph used by molx: atoms,
// bonds and an optional 3D conformer, together with the perception that turns
// a raw connection table into a sanitized structure (valences, rings,
// aromaticity, hybridization, conjugation and stereo). It also reads MDL
// V2000 / SDF files and reads and writes SMILES.
package molecule

import (
	"fmt"
	"math"
	"sort"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// BondType is the chemical bond order. The numeric values match the MDL bond
// block codes.
type BondType int

const (
	BondUnspecified BondType = 0
	BondSingle      BondType = 1
	BondDouble      BondType = 2
	BondTriple      BondType = 3
	BondAromatic    BondType = 4
)

func (b BondType) String() string {
	switch b {
	case BondSingle:
		return "SINGLE"
	case BondDouble:
		return "DOUBLE"
	case BondTriple:
		return "TRIPLE"
	case BondAromatic:
		return "AROMATIC"
	}
	return "UNSPECIFIED"
}

// valence returns the integer contribution of the bond to an atom's valence.
// Aromatic bonds count 1; the aromatic atom itself contributes the extra unit.
func (b BondType) valence() int {
	switch b {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondSingle, BondAromatic:
		return 1
	}
	return 0
}

// ChiralTag describes tetrahedral parity relative to the atom's bond order:
// looking from the first neighbour, the remaining ones turn clockwise (CW)
// or counter-clockwise (CCW). An implicit hydrogen counts as the last neighbour.
type ChiralTag int

const (
	ChiralUnspecified ChiralTag = iota
	ChiralCW
	ChiralCCW
	ChiralOther
)

func (c ChiralTag) String() string {
	switch c {
	case ChiralCW:
		return "CHI_TETRAHEDRAL_CW"
	case ChiralCCW:
		return "CHI_TETRAHEDRAL_CCW"
	case ChiralOther:
		return "CHI_OTHER"
	}
	return "CHI_UNSPECIFIED"
}

// Hybridization of an atom's valence orbitals.
type Hybridization int

const (
	HybridUnspecified Hybridization = iota
	HybridS
	HybridSP
	HybridSP2
	HybridSP3
	HybridSP3D
	HybridSP3D2
	HybridOther
)

func (h Hybridization) String() string {
	return [...]string{"UNSPECIFIED", "S", "SP", "SP2", "SP3", "SP3D", "SP3D2", "OTHER"}[h]
}

// BondStereo is the configuration of a double bond.
type BondStereo int

const (
	StereoNone BondStereo = iota
	StereoAny
	StereoZ
	StereoE
	StereoCis
	StereoTrans
)

func (s BondStereo) String() string {
	return [...]string{"STEREONONE", "STEREOANY", "STEREOZ", "STEREOE", "STEREOCIS", "STEREOTRANS"}[s]
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph elements
// ─────────────────────────────────────────────────────────────────────────────

// Vec3 is a Cartesian position in Å.
type Vec3 [3]float64

func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}
func (a Vec3) Norm() float64 { return math.Sqrt(a.Dot(a)) }

// Atom is a node of the molecular graph.
type Atom struct {
	AtomicNum int
	Charge    int
	// Isotope is the mass number; 0 means natural abundance.
	Isotope  int
	Radicals int
	// ExplicitHs is a hydrogen count carried on the atom (SMILES brackets)
	// as opposed to hydrogens present as separate atoms.
	ExplicitHs int
	// NoImplicit freezes the hydrogen count: ImplicitHs stays 0.
	NoImplicit bool
	ImplicitHs int

	Aromatic      bool
	InRing        bool
	Hybridization Hybridization
	Chirality     ChiralTag
	// Parity is the MDL stereo parity from the atom block (0 none, 1 odd,
	// 2 even, 3 either). Kept for round-tripping only.
	Parity int

	Pos Vec3
}

// Symbol returns the element symbol.
func (a *Atom) Symbol() string { return Symbol(a.AtomicNum) }

// Bond is an undirected edge of the molecular graph.
type Bond struct {
	Begin, End int
	Type       BondType
	Stereo     BondStereo
	Conjugated bool
	InRing     bool
	// MDLStereo is the raw bond-block stereo code (wedge/hash/either).
	MDLStereo int
}

// Other returns the atom at the other end of the bond.
func (b *Bond) Other(atom int) int {
	if b.Begin == atom {
		return b.End
	}
	return b.Begin
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecule
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is a molecular graph with an optional conformer.
type Molecule struct {
	Name  string
	Atoms []Atom
	Bonds []Bond
	// Has3D is set when atom positions come from a 3D conformer.
	Has3D bool
	// Props holds SD data items keyed by field name, in file order.
	Props     map[string]string
	PropOrder []string

	adj [][]int // atom -> incident bond indices, in bond order
	// ringBonds lists, per bond, the atoms of the smallest ring through it.
	ringBonds [][]int
	rings     [][]int
	sanitized bool
}

// New returns an empty molecule.
func New() *Molecule {
	return &Molecule{Props: map[string]string{}}
}

// AddAtom appends an atom and returns its index.
func (m *Molecule) AddAtom(a Atom) int {
	m.Atoms = append(m.Atoms, a)
	m.adj = nil
	return len(m.Atoms) - 1
}

// AddBond appends a bond between two existing atoms and returns its index.
func (m *Molecule) AddBond(begin, end int, t BondType) (int, error) {
	if begin < 0 || end < 0 || begin >= len(m.Atoms) || end >= len(m.Atoms) {
		return -1, fmt.Errorf("bond %d-%d references a missing atom (have %d)", begin+1, end+1, len(m.Atoms))
	}
	if begin == end {
		return -1, fmt.Errorf("bond %d-%d is a self loop", begin+1, end+1)
	}
	if m.BondBetween(begin, end) >= 0 {
		return -1, fmt.Errorf("duplicate bond %d-%d", begin+1, end+1)
	}
	m.Bonds = append(m.Bonds, Bond{Begin: begin, End: end, Type: t})
	m.adj = nil
	return len(m.Bonds) - 1, nil
}

// NumAtoms returns the atom count, hydrogens included.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the bond count.
func (m *Molecule) NumBonds() int { return len(m.Bonds) }

func (m *Molecule) ensureAdj() {
	if m.adj != nil && len(m.adj) == len(m.Atoms) {
		return
	}
	m.adj = make([][]int, len(m.Atoms))
	for bi, b := range m.Bonds {
		m.adj[b.Begin] = append(m.adj[b.Begin], bi)
		m.adj[b.End] = append(m.adj[b.End], bi)
	}
}

// AtomBonds returns the indices of the bonds incident to atom i, in bond
// order. The slice must not be modified.
func (m *Molecule) AtomBonds(i int) []int {
	m.ensureAdj()
	return m.adj[i]
}

// Neighbors returns the atoms bonded to atom i, in bond order.
func (m *Molecule) Neighbors(i int) []int {
	bonds := m.AtomBonds(i)
	out := make([]int, len(bonds))
	for k, bi := range bonds {
		out[k] = m.Bonds[bi].Other(i)
	}
	return out
}

// Degree is the number of explicit neighbours of atom i.
func (m *Molecule) Degree(i int) int { return len(m.AtomBonds(i)) }

// TotalHs is the hydrogen count carried on atom i (implicit plus bracket
// count). Hydrogens present as neighbour atoms are not included.
func (m *Molecule) TotalHs(i int) int {
	a := &m.Atoms[i]
	return a.ImplicitHs + a.ExplicitHs
}

// NeighborHs counts hydrogen atoms bonded to atom i.
func (m *Molecule) NeighborHs(i int) int {
	n := 0
	for _, j := range m.Neighbors(i) {
		if m.Atoms[j].AtomicNum == 1 {
			n++
		}
	}
	return n
}

// TotalDegree is the explicit degree plus the hydrogens carried on the atom.
func (m *Molecule) TotalDegree(i int) int { return m.Degree(i) + m.TotalHs(i) }

// BondBetween returns the index of the bond joining a and b, or -1.
func (m *Molecule) BondBetween(a, b int) int {
	if a < 0 || a >= len(m.Atoms) {
		return -1
	}
	for _, bi := range m.AtomBonds(a) {
		if m.Bonds[bi].Other(a) == b {
			return bi
		}
	}
	return -1
}

// ExplicitValence sums the bond valence contributions of atom i.
func (m *Molecule) ExplicitValence(i int) int {
	v := 0
	for _, bi := range m.AtomBonds(i) {
		v += m.Bonds[bi].Type.valence()
	}
	return v
}

// Positions returns a copy of the atom coordinates.
func (m *Molecule) Positions() []Vec3 {
	out := make([]Vec3, len(m.Atoms))
	for i := range m.Atoms {
		out[i] = m.Atoms[i].Pos
	}
	return out
}

// AtomicNumbers returns the atomic number of every atom.
func (m *Molecule) AtomicNumbers() []int64 {
	out := make([]int64, len(m.Atoms))
	for i := range m.Atoms {
		out[i] = int64(m.Atoms[i].AtomicNum)
	}
	return out
}

// Rings returns the smallest rings found during sanitization, each as a list
// of atom indices in ring order.
func (m *Molecule) Rings() [][]int { return m.rings }

// Sanitized reports whether Sanitize completed on this molecule.
func (m *Molecule) Sanitized() bool { return m.sanitized }

// Clone returns a deep copy.
func (m *Molecule) Clone() *Molecule {
	c := &Molecule{
		Name:      m.Name,
		Atoms:     append([]Atom(nil), m.Atoms...),
		Bonds:     append([]Bond(nil), m.Bonds...),
		Has3D:     m.Has3D,
		Props:     make(map[string]string, len(m.Props)),
		PropOrder: append([]string(nil), m.PropOrder...),
		sanitized: m.sanitized,
	}
	for k, v := range m.Props {
		c.Props[k] = v
	}
	for _, r := range m.rings {
		c.rings = append(c.rings, append([]int(nil), r...))
	}
	for _, r := range m.ringBonds {
		c.ringBonds = append(c.ringBonds, append([]int(nil), r...))
	}
	return c
}

// Formula returns the Hill-order molecular formula, hydrogens carried on
// atoms included.
func (m *Molecule) Formula() string {
	counts := map[int]int{}
	for i := range m.Atoms {
		counts[m.Atoms[i].AtomicNum]++
		counts[1] += m.TotalHs(i)
	}
	var out []byte
	write := func(z int) {
		n := counts[z]
		if n == 0 {
			return
		}
		out = append(out, Symbol(z)...)
		if n > 1 {
			out = append(out, fmt.Sprint(n)...)
		}
		delete(counts, z)
	}
	if counts[6] > 0 {
		write(6)
		write(1)
	}
	rest := make([]int, 0, len(counts))
	for z := range counts {
		rest = append(rest, z)
	}
	sortBySymbol(rest)
	for _, z := range rest {
		write(z)
	}
	return string(out)
}

func sortBySymbol(zs []int) {
	sort.Slice(zs, func(i, j int) bool { return Symbol(zs[i]) < Symbol(zs[j]) })
}
