package molecule

// AddHs returns a copy of m in which every hydrogen carried as a count
// (implicit or bracket) becomes an explicit atom single-bonded to its parent.
// New hydrogens are appended after the existing atoms in parent order, so the
// original atom indices are preserved. Positions of new atoms are left at the
// origin; callers that need geometry embed afterwards.
func AddHs(m *Molecule) *Molecule {
	out := m.Clone()
	n := len(m.Atoms)
	for i := 0; i < n; i++ {
		count := out.TotalHs(i)
		for k := 0; k < count; k++ {
			h := out.AddAtom(Atom{AtomicNum: 1, Hybridization: HybridS, NoImplicit: true})
			// AddBond only fails on bad indices or duplicates, neither possible here.
			_, _ = out.AddBond(i, h, BondSingle)
		}
		out.Atoms[i].ImplicitHs = 0
		out.Atoms[i].ExplicitHs = 0
		out.Atoms[i].NoImplicit = true
	}
	return out
}

// HeavyAtomCount counts atoms other than hydrogen.
func (m *Molecule) HeavyAtomCount() int {
	n := 0
	for i := range m.Atoms {
		if m.Atoms[i].AtomicNum != 1 {
			n++
		}
	}
	return n
}
