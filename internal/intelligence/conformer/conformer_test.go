package conformer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/pkg/errors"
)

func withHs(t *testing.T, smiles string) *molecule.Molecule {
	t.Helper()
	m, err := molecule.ParseSMILES(smiles)
	require.NoError(t, err)
	return molecule.AddHs(m)
}

func distance(a, b molecule.Vec3) float64 { return a.Sub(b).Norm() }

func TestEmbed_BondLengthsArePlausible(t *testing.T) {
	e := NewEmbedder(DefaultOptions(), logging.NewNopLogger())
	for _, s := range []string{"CCO", "c1ccccc1", "CC(=O)N", "C#N"} {
		t.Run(s, func(t *testing.T) {
			m := withHs(t, s)
			confs, err := e.Embed(context.Background(), m)
			require.NoError(t, err)
			require.Len(t, confs, 1)
			pos := confs[0]
			require.Len(t, pos, m.NumAtoms())
			for bi, b := range m.Bonds {
				want := bondLength(m, bi)
				got := distance(pos[b.Begin], pos[b.End])
				assert.InDelta(t, want, got, 0.2, "bond %d-%d", b.Begin, b.End)
			}
			for i := range pos {
				for k := 0; k < 3; k++ {
					assert.False(t, math.IsNaN(pos[i][k]))
				}
			}
		})
	}
}

func TestEmbed_NonBondedAtomsDoNotCollide(t *testing.T) {
	e := NewEmbedder(DefaultOptions(), nil)
	m := withHs(t, "CCCC")
	confs, err := e.Embed(context.Background(), m)
	require.NoError(t, err)
	pos := confs[0]
	for i := 0; i < m.NumAtoms(); i++ {
		for j := i + 1; j < m.NumAtoms(); j++ {
			assert.Greater(t, distance(pos[i], pos[j]), 0.7, "atoms %d and %d", i, j)
		}
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	m := withHs(t, "OCC(=O)O")
	opts := DefaultOptions()
	a, err := NewEmbedder(opts, nil).Embed(context.Background(), m)
	require.NoError(t, err)
	b, err := NewEmbedder(opts, nil).Embed(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbed_MultipleConformers(t *testing.T) {
	opts := DefaultOptions()
	opts.NumConformers = 3
	confs, err := NewEmbedder(opts, nil).Embed(context.Background(), withHs(t, "CCCO"))
	require.NoError(t, err)
	assert.Len(t, confs, 3)
}

func TestEmbed_SingleAtom(t *testing.T) {
	m, err := molecule.ParseSMILES("[Na+]")
	require.NoError(t, err)
	confs, err := NewEmbedder(DefaultOptions(), nil).Embed(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []molecule.Vec3{{0, 0, 0}}, confs[0])
}

func TestEmbed_Errors(t *testing.T) {
	e := NewEmbedder(DefaultOptions(), nil)
	raw := molecule.New()
	raw.AddAtom(molecule.Atom{AtomicNum: 6})
	_, err := e.Embed(context.Background(), raw)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConformerEmbedFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Embed(ctx, withHs(t, "CC"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapAtoms(t *testing.T) {
	ref := withHs(t, "OCC")
	other := withHs(t, "CCO")
	mapping, err := MapAtoms(ref, other)
	require.NoError(t, err)
	for i, j := range mapping {
		assert.Equal(t, ref.Atoms[i].AtomicNum, other.Atoms[j].AtomicNum)
	}
	for _, b := range ref.Bonds {
		assert.GreaterOrEqual(t, other.BondBetween(mapping[b.Begin], mapping[b.End]), 0)
	}

	_, err = MapAtoms(ref, withHs(t, "CCC"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConformerAlignFailed))
}

func TestSuperimpose_RecoversRigidMotion(t *testing.T) {
	target := []molecule.Vec3{{0, 0, 0}, {1.5, 0, 0}, {2, 1.4, 0}, {3.1, 1.6, 0.9}}
	// Rotate 90 degrees about z and translate.
	mobile := make([]molecule.Vec3, len(target))
	for i, p := range target {
		mobile[i] = molecule.Vec3{-p[1] + 4, p[0] - 2, p[2] + 1}
	}
	moved, rmsd, err := Superimpose(mobile, target)
	require.NoError(t, err)
	assert.InDelta(t, 0, rmsd, 1e-9)
	for i := range moved {
		for k := 0; k < 3; k++ {
			assert.InDelta(t, target[i][k], moved[i][k], 1e-9)
		}
	}
	assert.Greater(t, RMSD(mobile, target), 1.0)

	_, _, err = Superimpose(mobile[:2], target)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConformerAlignFailed))
}

func TestReorder(t *testing.T) {
	pos := []molecule.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	assert.Equal(t, []molecule.Vec3{{2, 0, 0}, {0, 0, 0}, {1, 0, 0}}, Reorder(pos, []int{2, 0, 1}))
}
