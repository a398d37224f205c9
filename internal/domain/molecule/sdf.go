package molecule

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/turtacn/molx/pkg/errors"
)

const recordTerminator = "$$$$"

var (
	// ErrMolBlock is the sentinel for unparsable connection tables.
	ErrMolBlock = errors.New(errors.ErrCodeMoleculeParsingFailed, "malformed mol block")
	// ErrMolV3000 is returned for V3000 connection tables, which are not read.
	ErrMolV3000 = errors.New(errors.ErrCodeMoleculeInvalidFormat, "V3000 mol blocks are not supported")
)

// ─────────────────────────────────────────────────────────────────────────────
// Mol block
// ─────────────────────────────────────────────────────────────────────────────

// ParseMolBlock parses one MDL V2000 record: header, counts line, atom and
// bond blocks, the property block and any trailing SD data items. The
// molecule is returned unsanitized.
func ParseMolBlock(text string) (*Molecule, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return nil, ErrMolBlock.WithDetail("fewer than four lines")
	}
	m := New()
	m.Name = strings.TrimSpace(lines[0])
	header3D := len(lines[1]) >= 22 && strings.EqualFold(strings.TrimSpace(sub(lines[1], 20, 22)), "3D")

	counts := lines[3]
	if strings.Contains(counts, "V3000") {
		return nil, ErrMolV3000
	}
	natoms, err1 := strconv.Atoi(strings.TrimSpace(sub(counts, 0, 3)))
	nbonds, err2 := strconv.Atoi(strings.TrimSpace(sub(counts, 3, 6)))
	if err1 != nil || err2 != nil {
		f := strings.Fields(counts)
		if len(f) < 2 {
			return nil, ErrMolBlock.WithDetailf("bad counts line %q", counts)
		}
		var e1, e2 error
		natoms, e1 = strconv.Atoi(f[0])
		nbonds, e2 = strconv.Atoi(f[1])
		if e1 != nil || e2 != nil {
			return nil, ErrMolBlock.WithDetailf("bad counts line %q", counts)
		}
	}
	if len(lines) < 4+natoms+nbonds {
		return nil, ErrMolBlock.WithDetailf("expected %d atom and %d bond lines", natoms, nbonds)
	}

	anyZ := false
	for k := 0; k < natoms; k++ {
		a, err := parseAtomLine(lines[4+k])
		if err != nil {
			return nil, ErrMolBlock.WithDetailf("atom line %d: %v", k+1, err)
		}
		if a.Pos[2] != 0 {
			anyZ = true
		}
		m.AddAtom(a)
	}
	m.Has3D = header3D || anyZ

	for k := 0; k < nbonds; k++ {
		line := lines[4+natoms+k]
		begin, end, order, stereo, err := parseBondLine(line)
		if err != nil {
			return nil, ErrMolBlock.WithDetailf("bond line %d: %v", k+1, err)
		}
		bi, err := m.AddBond(begin-1, end-1, BondType(order))
		if err != nil {
			return nil, ErrMolBlock.WithDetailf("bond line %d: %v", k+1, err)
		}
		m.Bonds[bi].MDLStereo = stereo
	}

	rest := lines[4+natoms+nbonds:]
	chargeSeen := false
	k := 0
	for ; k < len(rest); k++ {
		line := rest[k]
		if strings.HasPrefix(line, "M  END") {
			k++
			break
		}
		if strings.HasPrefix(line, ">") {
			break
		}
		switch {
		case strings.HasPrefix(line, "M  CHG"):
			if !chargeSeen {
				// M  CHG supersedes every charge from the atom block.
				for i := range m.Atoms {
					m.Atoms[i].Charge = 0
				}
				chargeSeen = true
			}
			if err := applyPropertyPairs(m, line, func(a *Atom, v int) { a.Charge = v }); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "M  RAD"):
			if err := applyPropertyPairs(m, line, func(a *Atom, v int) { a.Radicals = radicalElectrons(v) }); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "M  ISO"):
			if err := applyPropertyPairs(m, line, func(a *Atom, v int) { a.Isotope = v }); err != nil {
				return nil, err
			}
		}
	}
	parseDataItems(m, rest[k:])
	return m, nil
}

func sub(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// mdlCharges maps the atom-block charge code to a formal charge.
var mdlCharges = map[int]int{1: 3, 2: 2, 3: 1, 5: -1, 6: -2, 7: -3}

func parseAtomLine(line string) (Atom, error) {
	var a Atom
	x, ex := strconv.ParseFloat(strings.TrimSpace(sub(line, 0, 10)), 64)
	y, ey := strconv.ParseFloat(strings.TrimSpace(sub(line, 10, 20)), 64)
	z, ez := strconv.ParseFloat(strings.TrimSpace(sub(line, 20, 30)), 64)
	sym := strings.TrimSpace(sub(line, 31, 34))
	fixed := ex == nil && ey == nil && ez == nil && sym != ""

	var massDiff, chgCode, parity int
	if fixed {
		massDiff, _ = strconv.Atoi(strings.TrimSpace(sub(line, 34, 36)))
		chgCode, _ = strconv.Atoi(strings.TrimSpace(sub(line, 36, 39)))
		parity, _ = strconv.Atoi(strings.TrimSpace(sub(line, 39, 42)))
	} else {
		f := strings.Fields(line)
		if len(f) < 4 {
			return a, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "short atom line %q", line)
		}
		var err error
		if x, err = strconv.ParseFloat(f[0], 64); err != nil {
			return a, err
		}
		if y, err = strconv.ParseFloat(f[1], 64); err != nil {
			return a, err
		}
		if z, err = strconv.ParseFloat(f[2], 64); err != nil {
			return a, err
		}
		sym = f[3]
		if len(f) > 5 {
			chgCode, _ = strconv.Atoi(f[5])
		}
	}

	zNum, ok := AtomicNumber(normalizeSymbol(sym))
	if !ok {
		return a, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "unknown element %q", sym)
	}
	a.AtomicNum = zNum
	a.Pos = Vec3{x, y, z}
	a.Charge = mdlCharges[chgCode]
	a.Parity = parity
	switch sym {
	case "D":
		a.Isotope = 2
	case "T":
		a.Isotope = 3
	}
	if massDiff != 0 {
		a.Isotope = nominalMass(zNum) + massDiff
	}
	return a, nil
}

func parseBondLine(line string) (begin, end, order, stereo int, err error) {
	begin, e1 := strconv.Atoi(strings.TrimSpace(sub(line, 0, 3)))
	end, e2 := strconv.Atoi(strings.TrimSpace(sub(line, 3, 6)))
	order, e3 := strconv.Atoi(strings.TrimSpace(sub(line, 6, 9)))
	if e1 != nil || e2 != nil || e3 != nil {
		f := strings.Fields(line)
		if len(f) < 3 {
			return 0, 0, 0, 0, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "short bond line %q", line)
		}
		if begin, err = strconv.Atoi(f[0]); err != nil {
			return
		}
		if end, err = strconv.Atoi(f[1]); err != nil {
			return
		}
		if order, err = strconv.Atoi(f[2]); err != nil {
			return
		}
		if len(f) > 3 {
			stereo, _ = strconv.Atoi(f[3])
		}
	} else {
		stereo, _ = strconv.Atoi(strings.TrimSpace(sub(line, 9, 12)))
	}
	if order < 1 || order > 4 {
		return 0, 0, 0, 0, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "unsupported bond order %d", order)
	}
	return begin, end, order, stereo, nil
}

// applyPropertyPairs reads "M  XXXnn8 aaa vvv aaa vvv ..." lines.
func applyPropertyPairs(m *Molecule, line string, set func(*Atom, int)) error {
	f := strings.Fields(line)
	if len(f) < 3 {
		return ErrMolBlock.WithDetailf("bad property line %q", line)
	}
	n, err := strconv.Atoi(f[2])
	if err != nil || len(f) < 3+2*n {
		return ErrMolBlock.WithDetailf("bad property line %q", line)
	}
	for k := 0; k < n; k++ {
		idx, e1 := strconv.Atoi(f[3+2*k])
		val, e2 := strconv.Atoi(f[4+2*k])
		if e1 != nil || e2 != nil || idx < 1 || idx > len(m.Atoms) {
			return ErrMolBlock.WithDetailf("bad property line %q", line)
		}
		set(&m.Atoms[idx-1], val)
	}
	return nil
}

// radicalElectrons converts the MDL radical code (1 singlet, 2 doublet,
// 3 triplet) to a count of unpaired electrons.
func radicalElectrons(code int) int {
	switch code {
	case 2:
		return 1
	case 1, 3:
		return 2
	}
	return 0
}

// nominalMass is the mass number of the most common isotope, used to resolve
// the atom block's mass difference column.
func nominalMass(z int) int {
	masses := map[int]int{1: 1, 5: 11, 6: 12, 7: 14, 8: 16, 9: 19, 14: 28, 15: 31, 16: 32, 17: 35, 35: 79, 53: 127}
	if v, ok := masses[z]; ok {
		return v
	}
	return 2 * z
}

// parseDataItems reads "> <name>" headed SD data items up to the terminator.
func parseDataItems(m *Molecule, lines []string) {
	for k := 0; k < len(lines); k++ {
		line := lines[k]
		if strings.TrimSpace(line) == recordTerminator {
			return
		}
		if !strings.HasPrefix(line, ">") {
			continue
		}
		open := strings.Index(line, "<")
		closing := strings.LastIndex(line, ">")
		if open < 0 || closing <= open {
			continue
		}
		name := line[open+1 : closing]
		var val []string
		for k++; k < len(lines) && strings.TrimSpace(lines[k]) != "" && strings.TrimSpace(lines[k]) != recordTerminator; k++ {
			val = append(val, lines[k])
		}
		if _, dup := m.Props[name]; !dup {
			m.PropOrder = append(m.PropOrder, name)
		}
		m.Props[name] = strings.Join(val, "\n")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Supplier
// ─────────────────────────────────────────────────────────────────────────────

// Supplier gives indexed access to the records of an SDF file. Opening scans
// the file once for record boundaries; At reads and parses a single record.
type Supplier struct {
	path    string
	f       *os.File
	offsets []int64 // start of every record, plus the end of the last one
	mu      sync.Mutex
}

// OpenSupplier indexes the SDF file at path.
func OpenSupplier(path string) (*Supplier, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.ErrCodeRawDataMissing, "sdf file %s not found", path)
		}
		return nil, errors.Wrapf(err, errors.ErrCodeMoleculeParsingFailed, "open sdf file %s", path)
	}
	offsets, err := indexRecords(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeMoleculeParsingFailed, "index sdf file %s", path)
	}
	return &Supplier{path: path, f: f, offsets: offsets}, nil
}

// indexRecords returns the byte offset of every record start and, as the
// last element, the offset just past the final terminator. Trailing text
// without a terminator counts as a record when it is not blank.
func indexRecords(r io.Reader) ([]int64, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	offsets := []int64{0}
	var pos int64
	blank := true
	for {
		line, err := br.ReadBytes('\n')
		pos += int64(len(line))
		if len(line) > 0 {
			t := bytes.TrimSpace(line)
			if string(t) == recordTerminator {
				offsets = append(offsets, pos)
				blank = true
			} else if len(t) > 0 {
				blank = false
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if !blank {
		offsets = append(offsets, pos)
	}
	return offsets, nil
}

// Path returns the indexed file.
func (s *Supplier) Path() string { return s.path }

// Len returns the number of records.
func (s *Supplier) Len() int { return len(s.offsets) - 1 }

// Offset returns the byte offset at which record i starts.
func (s *Supplier) Offset(i int) int64 { return s.offsets[i] }

// Text returns the raw text of record i without its terminator line.
func (s *Supplier) Text(i int) (string, error) {
	if i < 0 || i >= s.Len() {
		return "", errors.Newf(errors.ErrCodeRecordOutOfRange, "record %d out of range [0, %d)", i, s.Len())
	}
	start, end := s.offsets[i], s.offsets[i+1]
	buf := make([]byte, end-start)
	s.mu.Lock()
	_, err := s.f.ReadAt(buf, start)
	s.mu.Unlock()
	if err != nil && err != io.EOF {
		return "", errors.Wrapf(err, errors.ErrCodeMoleculeParsingFailed, "read record %d", i)
	}
	text := string(buf)
	if idx := strings.LastIndex(text, recordTerminator); idx >= 0 {
		text = text[:idx]
	}
	return text, nil
}

// At parses record i. The molecule is not sanitized.
func (s *Supplier) At(i int) (*Molecule, error) {
	text, err := s.Text(i)
	if err != nil {
		return nil, err
	}
	m, err := ParseMolBlock(text)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeUnknown, "%s record %d", s.path, i)
	}
	return m, nil
}

// Close releases the underlying file.
func (s *Supplier) Close() error {
	return s.f.Close()
}
