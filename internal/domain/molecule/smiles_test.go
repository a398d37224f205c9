package molecule

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
)

func mustParse(t *testing.T, s string) *Molecule {
	t.Helper()
	m, err := ParseSMILES(s)
	require.NoError(t, err, s)
	return m
}

// permute rebuilds m with atom i moved to position perm[i] and sanitizes it.
func permute(t *testing.T, m *Molecule, perm []int) *Molecule {
	t.Helper()
	out := New()
	out.Atoms = make([]Atom, len(m.Atoms))
	for i, a := range m.Atoms {
		a.ImplicitHs = 0
		a.NoImplicit = true
		a.ExplicitHs = m.TotalHs(i)
		out.Atoms[perm[i]] = a
	}
	for _, b := range m.Bonds {
		_, err := out.AddBond(perm[b.Begin], perm[b.End], b.Type)
		require.NoError(t, err)
	}
	require.NoError(t, Sanitize(out))
	return out
}

func TestWriteSMILES_Simple(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CCO", "CCO"},
		{"OCC", "CCO"},
		{"C1=CC=CC=C1", "c1ccccc1"},
		{"c1ccccc1", "c1ccccc1"},
		{"C", "C"},
		{"[NH4+]", "[NH4+]"},
		{"O", "O"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, WriteSMILES(mustParse(t, tt.in)))
		})
	}
}

func TestWriteSMILES_InvariantUnderInputOrder(t *testing.T) {
	pairs := [][2]string{
		{"Oc1ccccc1C(=O)N", "NC(=O)c1ccccc1O"},
		{"CC(C)Cc1ccc(cc1)C(C)C(=O)O", "OC(=O)C(C)c1ccc(CC(C)C)cc1"},
		{"c1ccc2ccccc2c1", "c1cc2ccccc2cc1"},
		{"C1CCNCC1", "N1CCCCC1"},
	}
	for _, p := range pairs {
		t.Run(p[0], func(t *testing.T) {
			assert.Equal(t, WriteSMILES(mustParse(t, p[0])), WriteSMILES(mustParse(t, p[1])))
		})
	}
}

func TestWriteSMILES_InvariantUnderRenumbering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, s := range []string{
		"CC(=O)Oc1ccccc1C(=O)O",
		"c1ccc2[nH]ccc2c1",
		"CN1CCC[C@H]1c1cccnc1",
		"O=C1NC(=O)C(=O)N1",
	} {
		m := mustParse(t, s)
		want := WriteSMILES(m)
		for k := 0; k < 5; k++ {
			perm := rng.Perm(len(m.Atoms))
			assert.Equal(t, want, WriteSMILES(permute(t, m, perm)), "%s perm %v", s, perm)
		}
	}
}

func TestWriteSMILES_RoundTrip(t *testing.T) {
	for _, s := range []string{
		"CCO",
		"c1ccsc1",
		"c1cc[nH]c1",
		"c1ccncc1",
		"CC#N",
		"C[N+](C)(C)C",
		"[O-]C(=O)CC",
		"OC(=O)c1ccccc1-c1ccccc1",
		"C1CC2CCC1CC2",
		"[2H]C([2H])([2H])O",
	} {
		t.Run(s, func(t *testing.T) {
			first := WriteSMILES(mustParse(t, s))
			second := WriteSMILES(mustParse(t, first))
			assert.Equal(t, first, second)
		})
	}
}

func TestWriteSMILES_FoldsExplicitHydrogens(t *testing.T) {
	m := mustParse(t, "CCO")
	withHs := AddHs(m)
	require.Equal(t, 9, withHs.NumAtoms())
	assert.Equal(t, WriteSMILES(m), WriteSMILES(withHs))
}

func TestParseSMILES_Errors(t *testing.T) {
	tests := []struct {
		in   string
		code errors.ErrorCode
	}{
		{"", errors.ErrCodeMoleculeInvalidSMILES},
		{"C1CC", errors.ErrCodeMoleculeInvalidSMILES},
		{"C(C", errors.ErrCodeMoleculeInvalidSMILES},
		{"C)C", errors.ErrCodeMoleculeInvalidSMILES},
		{"[Xx]", errors.ErrCodeMoleculeInvalidSMILES},
		{"C==C", errors.ErrCodeMoleculeInvalidSMILES},
		{"C(C)(C)(C)(C)C", errors.ErrCodeMoleculeValenceInvalid},
		{"cc", errors.ErrCodeMoleculeSanitizeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseSMILES(tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestParseSMILES_BracketAtoms(t *testing.T) {
	m := mustParse(t, "[13CH3:1][C@@H](N)[O-]")
	require.Equal(t, 4, m.NumAtoms())
	assert.Equal(t, 13, m.Atoms[0].Isotope)
	assert.Equal(t, 3, m.TotalHs(0))
	assert.Equal(t, 1, m.TotalHs(1))
	assert.Equal(t, 2, m.TotalHs(2))
	assert.Equal(t, -1, m.Atoms[3].Charge)
	assert.Equal(t, 0, m.TotalHs(3))
}

func TestParseSMILES_TwoDigitRings(t *testing.T) {
	a := mustParse(t, "C%10CCCCC%10")
	b := mustParse(t, "C1CCCCC1")
	assert.Equal(t, WriteSMILES(b), WriteSMILES(a))
	assert.Equal(t, 1, a.NumRings())
}

func TestParseSMILES_IgnoresTrailingName(t *testing.T) {
	m := mustParse(t, "CCO ethanol")
	assert.Equal(t, 3, m.NumAtoms())
}
