package molecule

import (
	"sort"
)

// Invariant selects the atom properties that seed rank refinement.
type Invariant int

const (
	// InvariantChemical distinguishes element, heavy degree, hydrogen count,
	// charge, isotope, aromaticity, ring membership and radicals, and looks
	// at bond types during refinement. Used for canonical SMILES.
	InvariantChemical Invariant = iota
	// InvariantPriority ranks by element and isotope first so that refined
	// ranks approximate substituent priority. Used for stereo perception.
	InvariantPriority
	// InvariantTopology uses only element, degree and connectivity. Used to
	// map atoms between two copies of the same graph whose bond orders or
	// aromatic flags may have been perceived differently.
	InvariantTopology
)

// rankKey is compared lexicographically.
type rankKey []int64

func lessKey(a, b rankKey) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func equalKey(a, b rankKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ranker holds the state of one ranking run over a subset of atoms.
type ranker struct {
	m     *Molecule
	keep  []bool
	atoms []int
	inv   Invariant
	hs    []int
}

// CanonicalRanks returns a rank in [0, n) for every atom. Atoms that are
// equivalent after refinement are split deterministically so every rank is
// unique. Isomorphic inputs give ranks that correspond under the isomorphism
// (up to graph automorphism).
func CanonicalRanks(m *Molecule, inv Invariant) []int {
	keep := make([]bool, len(m.Atoms))
	for i := range keep {
		keep[i] = true
	}
	return newRanker(m, keep, nil, inv).run(true)
}

// SymmetryClasses returns refinement classes without tie breaking: atoms
// with equal values are topologically indistinguishable under inv.
func SymmetryClasses(m *Molecule, inv Invariant) []int {
	keep := make([]bool, len(m.Atoms))
	for i := range keep {
		keep[i] = true
	}
	return newRanker(m, keep, nil, inv).run(false)
}

// newRanker prepares a ranking over atoms with keep[i] set. hs overrides the
// hydrogen count per atom when non-nil.
func newRanker(m *Molecule, keep []bool, hs []int, inv Invariant) *ranker {
	r := &ranker{m: m, keep: keep, inv: inv, hs: hs}
	for i := range m.Atoms {
		if keep[i] {
			r.atoms = append(r.atoms, i)
		}
	}
	return r
}

func (r *ranker) hcount(i int) int {
	if r.hs != nil {
		return r.hs[i]
	}
	return r.m.TotalHs(i) + r.m.NeighborHs(i)
}

func (r *ranker) keptDegree(i int) int {
	n := 0
	for _, j := range r.m.Neighbors(i) {
		if r.keep[j] {
			n++
		}
	}
	return n
}

func (r *ranker) initialKey(i int) rankKey {
	a := &r.m.Atoms[i]
	switch r.inv {
	case InvariantPriority:
		return rankKey{int64(a.AtomicNum), int64(a.Isotope), int64(r.keptDegree(i))}
	case InvariantTopology:
		return rankKey{int64(a.AtomicNum), int64(r.keptDegree(i))}
	}
	return rankKey{
		int64(r.keptDegree(i)),
		int64(a.AtomicNum),
		int64(a.Isotope),
		int64(a.Charge),
		int64(r.hcount(i)),
		boolInt(a.Aromatic),
		boolInt(a.InRing),
		int64(a.Radicals),
	}
}

func (r *ranker) bondCode(bi int) int64 {
	if r.inv == InvariantTopology {
		return 0
	}
	return int64(r.m.Bonds[bi].Type)
}

// assign gives dense ranks to r.atoms ordered by keys and returns the number
// of distinct classes.
func (r *ranker) assign(keys map[int]rankKey, ranks []int) int {
	order := append([]int(nil), r.atoms...)
	sort.SliceStable(order, func(x, y int) bool { return lessKey(keys[order[x]], keys[order[y]]) })
	classes := 0
	for k, a := range order {
		if k > 0 && !equalKey(keys[order[k-1]], keys[a]) {
			classes++
		}
		ranks[a] = classes
	}
	if len(order) == 0 {
		return 0
	}
	return classes + 1
}

// refine iterates neighbourhood refinement until the class count is stable.
func (r *ranker) refine(ranks []int, classes int) int {
	for {
		keys := make(map[int]rankKey, len(r.atoms))
		for _, a := range r.atoms {
			var nb []int64
			for _, bi := range r.m.AtomBonds(a) {
				j := r.m.Bonds[bi].Other(a)
				if !r.keep[j] {
					continue
				}
				nb = append(nb, int64(ranks[j])*8+r.bondCode(bi))
			}
			sort.Slice(nb, func(x, y int) bool { return nb[x] < nb[y] })
			keys[a] = append(rankKey{int64(ranks[a])}, nb...)
		}
		next := r.assign(keys, ranks)
		if next == classes {
			return classes
		}
		classes = next
	}
}

func (r *ranker) run(breakTies bool) []int {
	ranks := make([]int, len(r.m.Atoms))
	for i := range ranks {
		ranks[i] = -1
	}
	keys := make(map[int]rankKey, len(r.atoms))
	for _, a := range r.atoms {
		keys[a] = r.initialKey(a)
	}
	classes := r.assign(keys, ranks)
	classes = r.refine(ranks, classes)
	if !breakTies {
		return ranks
	}

	for classes < len(r.atoms) {
		// Split the lowest tied class by promoting its lowest-index member.
		counts := make(map[int]int, classes)
		for _, a := range r.atoms {
			counts[ranks[a]]++
		}
		tied := -1
		for c := 0; c < classes; c++ {
			if counts[c] > 1 {
				tied = c
				break
			}
		}
		chosen := -1
		for _, a := range r.atoms {
			if ranks[a] == tied {
				chosen = a
				break
			}
		}
		split := make(map[int]rankKey, len(r.atoms))
		for _, a := range r.atoms {
			k := int64(ranks[a]) * 2
			if ranks[a] == tied && a != chosen {
				k++
			}
			split[a] = rankKey{k}
		}
		classes = r.assign(split, ranks)
		classes = r.refine(ranks, classes)
	}
	return ranks
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
