package transform

import (
	"context"
	"time"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/intelligence/conformer"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// RDKit3D regenerates xyz from the record's SMILES: hydrogens are made
// explicit, conformers are embedded by distance geometry, and the selected
// conformer is mapped onto the record's own atom order.
type RDKit3D struct {
	embedder *conformer.Embedder
	target   int
	confID   int
	opts     options
}

// NewRDKit3D fails when confID does not name one of the conformers the
// embedder generates.
func NewRDKit3D(e *conformer.Embedder, target, confID int, opts ...Option) (*RDKit3D, error) {
	if n := e.Options().NumConformers; confID < -1 || confID >= n {
		return nil, errors.Newf(errors.ErrCodeValidation, "conf_id %d out of range for %d conformers", confID, n)
	}
	return &RDKit3D{embedder: e, target: target, confID: confID, opts: newOptions(NameRDKit3D, opts)}, nil
}

func (t *RDKit3D) Name() string { return NameRDKit3D }

func (t *RDKit3D) Apply(ctx context.Context, r *mtypes.Record) (out *mtypes.Record, err error) {
	start := time.Now()
	defer func() { t.opts.observe(NameRDKit3D, start, err) }()

	out, err = withTarget(r, t.target)
	if err != nil {
		return nil, err
	}
	smiles, err := r.String(mtypes.KeySMILES)
	if err != nil {
		return nil, err
	}
	m, err := molecule.ParseSMILES(smiles)
	if err != nil {
		return nil, err
	}
	mh := molecule.AddHs(m)
	confs, err := t.embedder.Embed(ctx, mh)
	if err != nil {
		return nil, err
	}
	conf := confs[0]
	if t.confID >= 0 {
		conf = confs[t.confID]
	}

	ref, err := topology(r)
	if err != nil {
		return nil, err
	}
	mapping, err := conformer.MapAtoms(ref, mh)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeUnknown, "map %s onto record atoms", smiles)
	}
	pos := conformer.Reorder(conf, mapping)

	xyz := make([]float32, 0, 3*len(pos))
	for _, p := range pos {
		xyz = append(xyz, float32(p[0]), float32(p[1]), float32(p[2]))
	}
	out.SetFloat32(mtypes.KeyXYZ, []int{len(pos), 3}, xyz)
	t.opts.logger.Debug("conformer attached",
		logging.String("smiles", smiles),
		logging.Int("atoms", len(pos)))
	return out, nil
}

// topology rebuilds the bare graph of a record from z and edge_index, one
// bond per undirected edge.
func topology(r *mtypes.Record) (*molecule.Molecule, error) {
	z, err := r.Int64s(mtypes.KeyZ)
	if err != nil {
		return nil, err
	}
	edges, err := r.Int64s(mtypes.KeyEdgeIndex)
	if err != nil {
		return nil, err
	}
	m := molecule.New()
	for _, an := range z {
		m.AddAtom(molecule.Atom{AtomicNum: int(an), NoImplicit: true})
	}
	for k := 0; k+1 < len(edges); k += 2 {
		src, dst := int(edges[k]), int(edges[k+1])
		if src >= dst {
			continue
		}
		if _, err := m.AddBond(src, dst, molecule.BondSingle); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeGraphEncodingFailed, "rebuild record graph")
		}
	}
	return m, nil
}
