package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const waterBlock = `water
  molx    3D

  3  2  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.1173 O   0  0  0  0  0  0  0  0  0  0  0  0
    0.0000    0.7572   -0.4692 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.0000   -0.7572   -0.4692 H   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  1  3  1  0
M  END
`

const ammoniumBlock = `ammonium
  molx    3D

  5  4  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.0000 N   0  0  0  0  0  0  0  0  0  0  0  0
    0.5900    0.5900    0.5900 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.5900   -0.5900   -0.5900 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.5900    0.5900   -0.5900 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.5900   -0.5900    0.5900 H   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  1  3  1  0
  1  4  1  0
  1  5  1  0
M  CHG  1   1   1
M  END
`

const methaneBlock = `methane
  molx    3D

  5  4  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
    0.6293    0.6293    0.6293 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.6293   -0.6293   -0.6293 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.6293    0.6293   -0.6293 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.6293   -0.6293    0.6293 H   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  1  3  1  0
  1  4  1  0
  1  5  1  0
M  END
`

// pentavalent carbon fails valence checks.
const badBlock = `bad
  molx    3D

  6  5  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
    1.0900    0.0000    0.0000 H   0  0  0  0  0  0  0  0  0  0  0  0
   -1.0900    0.0000    0.0000 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.0000    1.0900    0.0000 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.0000   -1.0900    0.0000 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.0000    0.0000    1.0900 H   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  1  3  1  0
  1  4  1  0
  1  5  1  0
  1  6  1  0
M  END
`

var testSDFFiles = []string{"part0.sdf", "part1.sdf"}

type rawFixture struct {
	root   string
	rawDir string
}

func sdfText(blocks ...string) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b)
		sb.WriteString("$$$$\n")
	}
	return sb.String()
}

// newRawFixture lays out {root}/Molecule3D/raw with two SDF files holding
// water, methane | ammonium, water, a properties table with two targets and
// a random split index.
func newRawFixture(t *testing.T) *rawFixture {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, DefaultName, "raw")
	require.NoError(t, os.MkdirAll(raw, 0o755))

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(raw, name), []byte(content), 0o644))
	}
	write("part0.sdf", sdfText(waterBlock, methaneBlock))
	write("part1.sdf", sdfText(ammoniumBlock, waterBlock))
	write("properties.csv", "cid,gap,dipole\nm0,0.5,1.5\nm1,1.0,0.0\nm2,2.0,3.25\nm3,0.5,1.5\n")

	inds, err := json.Marshal(map[string][]int{"train": {0, 2}, "valid": {1}, "test": {3}})
	require.NoError(t, err)
	write(SplitIndexFile(SplitModeRandom), string(inds))
	return &rawFixture{root: root, rawDir: raw}
}

func (f *rawFixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.rawDir, name), []byte(content), 0o644))
}

func (f *rawFixture) readerConfig() ReaderConfig {
	return ReaderConfig{RawDir: f.rawDir, SDFFiles: testSDFFiles, PropertiesFile: "properties.csv"}
}

func (f *rawFixture) options() Options {
	return Options{Root: f.root, SDFFiles: testSDFFiles}
}

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }
