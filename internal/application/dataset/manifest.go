package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/intelligence/molgraph"
	"github.com/turtacn/molx/pkg/errors"
)

// SplitInfo describes one persisted split.
type SplitInfo struct {
	Key     string `json:"key"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"`
	Bytes   int64  `json:"bytes"`
}

// Manifest records the outcome of one build of a split mode.
type Manifest struct {
	BuildID           string               `json:"build_id"`
	Dataset           string               `json:"dataset"`
	SplitMode         string               `json:"split_mode"`
	ProcessedFilename string               `json:"processed_filename"`
	Splits            map[string]SplitInfo `json:"splits"`
	Targets           []string             `json:"targets"`
	FeatureDims       molgraph.FeatureDims `json:"feature_dims"`
	CreatedAt         time.Time            `json:"created_at"`
}

// ProcessedDir is the key prefix of everything built for mode.
func ProcessedDir(mode string) string { return "processed/" + mode + "/" }

// ManifestKey is the key of the manifest for mode.
func ManifestKey(mode string) string { return ProcessedDir(mode) + "manifest.json" }

// SplitKey is the key of the tensor file holding split.
func SplitKey(mode, split, filename string) string {
	return fmt.Sprintf("%s%s.%s", ProcessedDir(mode), split, filename)
}

// TargetIndex returns the column position of a target name.
func (m *Manifest) TargetIndex(name string) (int, bool) {
	for i, t := range m.Targets {
		if t == name {
			return i, true
		}
	}
	return -1, false
}

// LoadManifest reads the manifest of mode. It returns ErrNotProcessed when
// nothing was built yet.
func LoadManifest(ctx context.Context, store blob.Store, mode string) (*Manifest, error) {
	key := ManifestKey(mode)
	obj, err := store.Open(ctx, key)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeObjectNotFound) {
			return nil, ErrNotProcessed.WithDetail(store.Location(key))
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(io.NewSectionReader(obj, 0, obj.Size()))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeStorage, "read %s", key)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrManifestMalformed.WithDetail(store.Location(key)).WithCause(err)
	}
	if m.SplitMode != mode || len(m.Splits) == 0 {
		return nil, ErrManifestMalformed.WithDetailf("%s: split_mode %q with %d splits", store.Location(key), m.SplitMode, len(m.Splits))
	}
	return &m, nil
}

// SaveManifest writes m under its mode's manifest key.
func SaveManifest(ctx context.Context, store blob.Store, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode manifest")
	}
	return store.Put(ctx, ManifestKey(m.SplitMode), bytes.NewReader(data), int64(len(data)))
}
