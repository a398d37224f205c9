package molecule

import "strings"

// MaxAtomicNumber is the highest element number the tables know about.
const MaxAtomicNumber = 118

var elementSymbols = [...]string{
	"*",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm", "Md", "No", "Lr",
	"Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds", "Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var symbolToNumber = func() map[string]int {
	m := make(map[string]int, len(elementSymbols))
	for z, s := range elementSymbols {
		m[s] = z
	}
	// MDL files use D and T for hydrogen isotopes.
	m["D"] = 1
	m["T"] = 1
	return m
}()

// defaultValences lists allowed total valences, smallest first. Elements
// missing here are not valence checked and never receive implicit hydrogens.
var defaultValences = map[int][]int{
	1:  {1},
	3:  {1},
	5:  {3},
	6:  {4},
	7:  {3},
	8:  {2},
	9:  {1},
	11: {1},
	12: {2},
	13: {3},
	14: {4},
	15: {3, 5, 7},
	16: {2, 4, 6},
	17: {1},
	19: {1},
	20: {2},
	32: {4},
	33: {3, 5, 7},
	34: {2, 4, 6},
	35: {1},
	50: {2, 4},
	52: {2, 4, 6},
	53: {1, 3, 5},
}

// covalentRadii in Å (Cordero et al. 2008) for the elements that appear in
// organic datasets. Others fall back to defaultCovalentRadius.
var covalentRadii = map[int]float64{
	1: 0.31, 3: 1.28, 5: 0.84, 6: 0.76, 7: 0.71, 8: 0.66, 9: 0.57,
	11: 1.66, 12: 1.41, 13: 1.21, 14: 1.11, 15: 1.07, 16: 1.05, 17: 1.02,
	19: 2.03, 20: 1.76, 32: 1.20, 33: 1.19, 34: 1.20, 35: 1.20,
	50: 1.39, 52: 1.38, 53: 1.39,
}

// vdwRadii in Å (Bondi 1964).
var vdwRadii = map[int]float64{
	1: 1.20, 5: 1.92, 6: 1.70, 7: 1.55, 8: 1.52, 9: 1.47,
	14: 2.10, 15: 1.80, 16: 1.80, 17: 1.75, 33: 1.85, 34: 1.90, 35: 1.85, 53: 1.98,
}

const (
	defaultCovalentRadius = 1.50
	defaultVdwRadius      = 2.00
)

// organicSubset are the elements that may be written without brackets in
// SMILES when their hydrogen count is implied.
var organicSubset = map[int]bool{5: true, 6: true, 7: true, 8: true, 9: true, 15: true, 16: true, 17: true, 35: true, 53: true}

// aromaticSymbols may appear in lowercase in SMILES.
var aromaticSymbols = map[int]bool{5: true, 6: true, 7: true, 8: true, 15: true, 16: true, 33: true, 34: true}

// Symbol returns the element symbol for atomic number z, or "*" when unknown.
func Symbol(z int) string {
	if z < 0 || z >= len(elementSymbols) {
		return "*"
	}
	return elementSymbols[z]
}

// AtomicNumber resolves an element symbol (case-sensitive, "Cl" not "CL")
// to its atomic number. Unknown symbols return 0 and false.
func AtomicNumber(symbol string) (int, bool) {
	z, ok := symbolToNumber[symbol]
	if !ok || z == 0 {
		return 0, false
	}
	return z, true
}

// normalizeSymbol turns "CL" or "cl" into "Cl".
func normalizeSymbol(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// CovalentRadius returns the covalent radius of element z in Å.
func CovalentRadius(z int) float64 {
	if r, ok := covalentRadii[z]; ok {
		return r
	}
	return defaultCovalentRadius
}

// VdwRadius returns the van der Waals radius of element z in Å.
func VdwRadius(z int) float64 {
	if r, ok := vdwRadii[z]; ok {
		return r
	}
	return defaultVdwRadius
}

// valenceList returns the allowed valences for an atom with the given charge.
// Charged main-group atoms behave like their isoelectronic neighbour
// (N+ like C, O- like F, B- like C).
func valenceList(z, charge int) []int {
	if charge != 0 {
		if v, ok := defaultValences[z-charge]; ok && samePeriod(z, z-charge) {
			return v
		}
	}
	return defaultValences[z]
}

func samePeriod(a, b int) bool {
	return period(a) == period(b)
}

func period(z int) int {
	switch {
	case z <= 2:
		return 1
	case z <= 10:
		return 2
	case z <= 18:
		return 3
	case z <= 36:
		return 4
	case z <= 54:
		return 5
	case z <= 86:
		return 6
	default:
		return 7
	}
}

// isMainGroup reports whether z is an s/p-block element for which a
// hybridization state is meaningful.
func isMainGroup(z int) bool {
	switch {
	case z >= 1 && z <= 20:
		return true
	case z >= 31 && z <= 38:
		return true
	case z >= 49 && z <= 56:
		return true
	case z >= 81 && z <= 88:
		return true
	}
	return false
}

// ImplicitHydrogens returns the hydrogen count implied by the default valence
// model for an atom with the given bond order sum. aromaticBonds counts bonds
// of aromatic type; each contributes 1 to sum, and an aromatic atom adds one
// extra unit. The SMILES writer and parser share this rule so that a written
// organic-subset atom reads back with the same hydrogen count.
func ImplicitHydrogens(z, charge, radicals int, aromatic bool, sum int) int {
	vals := valenceList(z, charge)
	if len(vals) == 0 {
		return 0
	}
	sum += radicals
	if aromatic {
		// Aromatic atoms only ever take their default valence (thiophene s
		// stays at 2 rather than being promoted to 4).
		sum++
		if sum <= vals[0] {
			return vals[0] - sum
		}
		return 0
	}
	for _, v := range vals {
		if v >= sum {
			return v - sum
		}
	}
	return 0
}

// maxValence returns the largest allowed valence and whether the element is
// valence checked at all.
func maxValence(z, charge int) (int, bool) {
	vals := valenceList(z, charge)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}
