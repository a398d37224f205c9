package dataset

import (
	"bufio"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Properties is the target table: row i holds the targets of the molecule
// with absolute index i.
type Properties struct {
	// ID is the name of the identifier column.
	ID string
	// Names are the target column names in column order.
	Names []string
	rows  [][]float32
}

// LoadProperties reads a CSV whose first column is an identifier and whose
// remaining columns are numeric targets.
func LoadProperties(path string) (*Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRawDataMissing.WithDetail(path)
		}
		return nil, ErrPropertiesMalformed.WithDetail(path).WithCause(err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(bufio.NewReaderSize(f, 1<<20), dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, ErrPropertiesMalformed.WithDetail(path).WithCause(df.Err)
	}
	names := df.Names()
	if len(names) < 2 {
		return nil, ErrPropertiesMalformed.WithDetailf("%s: need an id column and at least one target, got %d columns", path, len(names))
	}

	p := &Properties{ID: names[0], Names: names[1:], rows: make([][]float32, df.Nrow())}
	flat := make([]float32, df.Nrow()*len(p.Names))
	for i := range p.rows {
		p.rows[i] = flat[i*len(p.Names) : (i+1)*len(p.Names) : (i+1)*len(p.Names)]
	}
	for j, name := range p.Names {
		col := df.Col(name)
		if t := col.Type(); t != series.Float && t != series.Int {
			return nil, ErrPropertiesMalformed.WithDetailf("%s: column %q is %s, want numeric", path, name, t)
		}
		for i, v := range col.Float() {
			p.rows[i][j] = float32(v)
		}
	}
	return p, nil
}

// Len returns the number of rows.
func (p *Properties) Len() int { return len(p.rows) }

// Row returns a copy of the targets of absolute index i.
func (p *Properties) Row(i int) ([]float32, error) {
	if i < 0 || i >= len(p.rows) {
		return nil, ErrPropertiesMalformed.WithDetailf("no row for molecule %d; table has %d rows", i, len(p.rows))
	}
	return append([]float32(nil), p.rows[i]...), nil
}
