package molecule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/molx/pkg/errors"
)

// ErrSMILES is the sentinel for SMILES strings that cannot be parsed.
var ErrSMILES = errors.New(errors.ErrCodeMoleculeInvalidSMILES, "invalid SMILES")

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

type smilesWriter struct {
	m     *Molecule
	keep  []bool
	hs    []int
	ranks []int

	visited  []bool
	preorder []int
	children [][]int // tree children per atom, rank order
	// opens and closes list closure bond indices per atom.
	opens  [][]int
	closes [][]int
	closed map[int]bool

	digits  map[int]int // closure bond -> ring digit
	inUse   map[int]bool
	sb      strings.Builder
	emitted int
}

// WriteSMILES returns a canonical SMILES for a sanitized molecule. Hydrogen
// atoms bonded to a single heavy atom are folded into that atom's hydrogen
// count; stereo is not written. Atom numbering does not affect the result.
func WriteSMILES(m *Molecule) string {
	n := len(m.Atoms)
	w := &smilesWriter{
		m:        m,
		keep:     make([]bool, n),
		hs:       make([]int, n),
		visited:  make([]bool, n),
		preorder: make([]int, n),
		children: make([][]int, n),
		opens:    make([][]int, n),
		closes:   make([][]int, n),
		closed:   map[int]bool{},
		digits:   map[int]int{},
		inUse:    map[int]bool{},
	}
	for i := range m.Atoms {
		w.keep[i] = !w.suppressedH(i)
	}
	for i := range m.Atoms {
		if !w.keep[i] {
			continue
		}
		w.hs[i] = m.TotalHs(i)
		for _, j := range m.Neighbors(i) {
			if !w.keep[j] {
				w.hs[i]++
			}
		}
	}
	w.ranks = newRanker(m, w.keep, w.hs, InvariantChemical).run(true)

	order := make([]int, 0, n)
	for i := range m.Atoms {
		if w.keep[i] {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(x, y int) bool { return w.ranks[order[x]] < w.ranks[order[y]] })

	var roots []int
	for _, a := range order {
		if !w.visited[a] {
			roots = append(roots, a)
			w.walk(a, -1)
		}
	}
	for k, root := range roots {
		if k > 0 {
			w.sb.WriteByte('.')
		}
		w.emit(root)
	}
	return w.sb.String()
}

func (w *smilesWriter) suppressedH(i int) bool {
	a := &w.m.Atoms[i]
	if a.AtomicNum != 1 || a.Charge != 0 || a.Isotope != 0 || a.Radicals != 0 || a.ExplicitHs != 0 {
		return false
	}
	nbs := w.m.Neighbors(i)
	return len(nbs) == 1 && w.m.Atoms[nbs[0]].AtomicNum != 1
}

// sortedBonds returns the bonds of a to kept atoms, ordered by neighbour rank.
func (w *smilesWriter) sortedBonds(a int) []int {
	var out []int
	for _, bi := range w.m.AtomBonds(a) {
		if w.keep[w.m.Bonds[bi].Other(a)] {
			out = append(out, bi)
		}
	}
	sort.Slice(out, func(x, y int) bool {
		return w.ranks[w.m.Bonds[out[x]].Other(a)] < w.ranks[w.m.Bonds[out[y]].Other(a)]
	})
	return out
}

// walk fixes the spanning tree and the ring closures.
func (w *smilesWriter) walk(a, parentBond int) {
	w.visited[a] = true
	w.preorder[a] = w.emitted
	w.emitted++
	for _, bi := range w.sortedBonds(a) {
		if bi == parentBond {
			continue
		}
		j := w.m.Bonds[bi].Other(a)
		if w.visited[j] {
			if !w.closed[bi] {
				w.closed[bi] = true
				w.opens[j] = append(w.opens[j], bi)
				w.closes[a] = append(w.closes[a], bi)
			}
			continue
		}
		w.children[a] = append(w.children[a], bi)
		w.walk(j, bi)
	}
}

func (w *smilesWriter) emit(a int) {
	w.sb.WriteString(w.atomToken(a))

	closes := append([]int(nil), w.closes[a]...)
	sort.Slice(closes, func(x, y int) bool { return w.partnerOrder(a, closes[x]) < w.partnerOrder(a, closes[y]) })
	for _, bi := range closes {
		d := w.digits[bi]
		w.writeDigit(d)
		delete(w.inUse, d)
	}

	opens := append([]int(nil), w.opens[a]...)
	sort.Slice(opens, func(x, y int) bool { return w.partnerOrder(a, opens[x]) < w.partnerOrder(a, opens[y]) })
	for _, bi := range opens {
		d := 1
		for w.inUse[d] {
			d++
		}
		w.inUse[d] = true
		w.digits[bi] = d
		w.sb.WriteString(w.bondSymbol(bi))
		w.writeDigit(d)
	}

	kids := w.children[a]
	for k, bi := range kids {
		j := w.m.Bonds[bi].Other(a)
		last := k == len(kids)-1
		if !last {
			w.sb.WriteByte('(')
		}
		w.sb.WriteString(w.bondSymbol(bi))
		w.emit(j)
		if !last {
			w.sb.WriteByte(')')
		}
	}
}

func (w *smilesWriter) partnerOrder(a, bi int) int {
	return w.preorder[w.m.Bonds[bi].Other(a)]
}

func (w *smilesWriter) writeDigit(d int) {
	if d > 9 {
		w.sb.WriteByte('%')
	}
	w.sb.WriteString(strconv.Itoa(d))
}

func (w *smilesWriter) bondSymbol(bi int) string {
	b := &w.m.Bonds[bi]
	bothAromatic := w.m.Atoms[b.Begin].Aromatic && w.m.Atoms[b.End].Aromatic
	switch b.Type {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondAromatic:
		if bothAromatic {
			return ""
		}
		return ":"
	case BondSingle:
		if bothAromatic {
			return "-"
		}
	}
	return ""
}

func (w *smilesWriter) atomToken(i int) string {
	a := &w.m.Atoms[i]
	sym := Symbol(a.AtomicNum)
	if a.Aromatic && aromaticSymbols[a.AtomicNum] {
		sym = strings.ToLower(sym)
	}

	sum := 0
	for _, bi := range w.m.AtomBonds(i) {
		if w.keep[w.m.Bonds[bi].Other(i)] {
			sum += w.m.Bonds[bi].Type.valence()
		}
	}
	bare := organicSubset[a.AtomicNum] &&
		a.Charge == 0 && a.Isotope == 0 && a.Radicals == 0 &&
		(!a.Aromatic || aromaticSymbols[a.AtomicNum]) &&
		w.hs[i] == ImplicitHydrogens(a.AtomicNum, 0, 0, a.Aromatic, sum)
	if bare {
		return sym
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(sym)
	switch h := w.hs[i]; {
	case h == 1:
		sb.WriteByte('H')
	case h > 1:
		sb.WriteByte('H')
		sb.WriteString(strconv.Itoa(h))
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		sb.WriteByte('+')
		sb.WriteString(strconv.Itoa(a.Charge))
	case a.Charge < -1:
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(-a.Charge))
	}
	sb.WriteByte(']')
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Parser
// ─────────────────────────────────────────────────────────────────────────────

type openRing struct {
	atom     int
	bond     BondType
	explicit bool
}

type smilesParser struct {
	s   string
	pos int
	m   *Molecule

	prev     int
	branches []int
	bond     BondType
	explicit bool
	rings    map[int]openRing
}

// ParseSMILES parses a SMILES string into a sanitized molecule with implicit
// hydrogens. Stereo marks (@, /, \) are accepted and ignored.
func ParseSMILES(s string) (*Molecule, error) {
	s = strings.TrimSpace(s)
	if f := strings.Fields(s); len(f) > 1 {
		s = f[0]
	}
	if s == "" {
		return nil, ErrSMILES.WithDetail("empty string")
	}
	p := &smilesParser{s: s, m: New(), prev: -1, rings: map[int]openRing{}}
	if err := p.parse(); err != nil {
		return nil, err
	}
	if err := Sanitize(p.m); err != nil {
		return nil, err
	}
	return p.m, nil
}

func (p *smilesParser) fail(format string, args ...interface{}) error {
	return ErrSMILES.WithDetailf("%s at position %d in %q", fmt.Sprintf(format, args...), p.pos, p.s)
}

func (p *smilesParser) parse() error {
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch without a preceding atom")
			}
			p.branches = append(p.branches, p.prev)
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return p.fail("unmatched ')'")
			}
			p.prev = p.branches[len(p.branches)-1]
			p.branches = p.branches[:len(p.branches)-1]
			p.pos++
		case c == '.':
			p.prev = -1
			p.pos++
		case strings.IndexByte("-=#$:/\\", c) >= 0:
			if err := p.parseBond(c); err != nil {
				return err
			}
			p.pos++
		case c >= '0' && c <= '9' || c == '%':
			if err := p.parseRing(); err != nil {
				return err
			}
		case c == '[':
			if err := p.parseBracket(); err != nil {
				return err
			}
		default:
			if err := p.parseOrganic(); err != nil {
				return err
			}
		}
	}
	if len(p.branches) > 0 {
		return p.fail("unclosed branch")
	}
	if len(p.rings) > 0 {
		return p.fail("unclosed ring")
	}
	return nil
}

func (p *smilesParser) parseBond(c byte) error {
	if p.explicit {
		return p.fail("two consecutive bond symbols")
	}
	switch c {
	case '-', '/', '\\':
		p.bond = BondSingle
	case '=':
		p.bond = BondDouble
	case '#':
		p.bond = BondTriple
	case ':':
		p.bond = BondAromatic
	default:
		return p.fail("quadruple bonds are not supported")
	}
	p.explicit = true
	return nil
}

func (p *smilesParser) defaultBond(a, b int) BondType {
	if p.m.Atoms[a].Aromatic && p.m.Atoms[b].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

func (p *smilesParser) addAtom(a Atom) error {
	idx := p.m.AddAtom(a)
	if p.prev >= 0 {
		t := p.bond
		if !p.explicit {
			t = p.defaultBond(p.prev, idx)
		}
		if _, err := p.m.AddBond(p.prev, idx, t); err != nil {
			return p.fail("%v", err)
		}
	} else if p.explicit {
		return p.fail("bond without a preceding atom")
	}
	p.prev = idx
	p.explicit = false
	return nil
}

func (p *smilesParser) parseRing() error {
	if p.prev < 0 {
		return p.fail("ring closure without an atom")
	}
	var d int
	if p.s[p.pos] == '%' {
		if p.pos+2 >= len(p.s) {
			return p.fail("truncated ring number")
		}
		n, err := strconv.Atoi(p.s[p.pos+1 : p.pos+3])
		if err != nil {
			return p.fail("bad ring number")
		}
		d = n
		p.pos += 3
	} else {
		d = int(p.s[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[d]
	if !ok {
		p.rings[d] = openRing{atom: p.prev, bond: p.bond, explicit: p.explicit}
		p.explicit = false
		return nil
	}
	delete(p.rings, d)
	t := p.defaultBond(open.atom, p.prev)
	switch {
	case p.explicit:
		t = p.bond
	case open.explicit:
		t = open.bond
	}
	p.explicit = false
	if _, err := p.m.AddBond(open.atom, p.prev, t); err != nil {
		return p.fail("%v", err)
	}
	return nil
}

func (p *smilesParser) parseOrganic() error {
	rest := p.s[p.pos:]
	switch {
	case strings.HasPrefix(rest, "Cl"):
		p.pos += 2
		return p.addAtom(Atom{AtomicNum: 17})
	case strings.HasPrefix(rest, "Br"):
		p.pos += 2
		return p.addAtom(Atom{AtomicNum: 35})
	}
	c := rest[0]
	p.pos++
	switch c {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		z, _ := AtomicNumber(string(c))
		return p.addAtom(Atom{AtomicNum: z})
	case 'b', 'c', 'n', 'o', 'p', 's':
		z, _ := AtomicNumber(strings.ToUpper(string(c)))
		return p.addAtom(Atom{AtomicNum: z, Aromatic: true})
	case '*':
		return p.addAtom(Atom{NoImplicit: true})
	}
	p.pos--
	return p.fail("unexpected character %q", string(c))
}

func (p *smilesParser) parseBracket() error {
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return p.fail("unclosed bracket atom")
	}
	body := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1

	a := Atom{NoImplicit: true}
	k := 0
	for k < len(body) && body[k] >= '0' && body[k] <= '9' {
		k++
	}
	if k > 0 {
		a.Isotope, _ = strconv.Atoi(body[:k])
	}
	if k >= len(body) {
		return p.fail("bracket atom without a symbol")
	}

	switch {
	case body[k] == '*':
		k++
	case body[k] >= 'a' && body[k] <= 'z':
		a.Aromatic = true
		sym := body[k : k+1]
		if k+1 < len(body) && (body[k:k+2] == "se" || body[k:k+2] == "as") {
			sym = body[k : k+2]
		}
		z, ok := AtomicNumber(normalizeSymbol(sym))
		if !ok {
			return p.fail("unknown aromatic symbol %q", sym)
		}
		a.AtomicNum = z
		k += len(sym)
	case body[k] >= 'A' && body[k] <= 'Z':
		sym := body[k : k+1]
		if k+1 < len(body) && body[k+1] >= 'a' && body[k+1] <= 'z' {
			if _, ok := AtomicNumber(body[k : k+2]); ok {
				sym = body[k : k+2]
			}
		}
		z, ok := AtomicNumber(sym)
		if !ok {
			return p.fail("unknown element %q", sym)
		}
		a.AtomicNum = z
		k += len(sym)
	default:
		return p.fail("bad bracket atom %q", body)
	}

	// Chirality: @, @@ or @TH1 style classes.
	if k < len(body) && body[k] == '@' {
		k++
		switch {
		case k < len(body) && body[k] == '@':
			k++
		case k+1 < len(body) && strings.Contains("TH AL SP TB OH", body[k:k+2]):
			k += 2
			for k < len(body) && body[k] >= '0' && body[k] <= '9' {
				k++
			}
		}
	}

	if k < len(body) && body[k] == 'H' {
		k++
		n := 1
		start := k
		for k < len(body) && body[k] >= '0' && body[k] <= '9' {
			k++
		}
		if k > start {
			n, _ = strconv.Atoi(body[start:k])
		}
		a.ExplicitHs = n
	}

	if k < len(body) && (body[k] == '+' || body[k] == '-') {
		sign := 1
		if body[k] == '-' {
			sign = -1
		}
		c := body[k]
		k++
		start := k
		for k < len(body) && body[k] >= '0' && body[k] <= '9' {
			k++
		}
		switch {
		case k > start:
			n, _ := strconv.Atoi(body[start:k])
			a.Charge = sign * n
		default:
			n := 1
			for k < len(body) && body[k] == c {
				n++
				k++
			}
			a.Charge = sign * n
		}
	}

	if k < len(body) && body[k] == ':' {
		k++
		for k < len(body) && body[k] >= '0' && body[k] <= '9' {
			k++
		}
	}
	if k != len(body) {
		return p.fail("trailing characters in bracket atom %q", body)
	}
	return p.addAtom(a)
}
