package dataset

import (
	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/internal/intelligence/molgraph"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// EncodeMolecule turns a sanitized molecule and its targets into a record
// carrying the graph (x, edge_index, edge_attr, num_nodes), the conformer
// (xyz), atomic numbers (z), the canonical SMILES and props.
func EncodeMolecule(m *molecule.Molecule, props []float32) (*mtypes.Record, error) {
	g, err := molgraph.Encode(m)
	if err != nil {
		return nil, err
	}
	r := mtypes.NewRecord()
	g.Fill(r)

	pos := m.Positions()
	xyz := make([]float32, 0, 3*len(pos))
	for _, p := range pos {
		xyz = append(xyz, float32(p[0]), float32(p[1]), float32(p[2]))
	}
	r.SetFloat32(mtypes.KeyXYZ, []int{len(pos), 3}, xyz)
	r.SetInt64(mtypes.KeyZ, nil, m.AtomicNumbers())
	r.SetString(mtypes.KeySMILES, molecule.WriteSMILES(m))
	r.SetFloat32(mtypes.KeyProps, nil, props)
	return r, nil
}
