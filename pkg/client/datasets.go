package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// SplitInfo describes one persisted split of a build.
type SplitInfo struct {
	Key     string `json:"key"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"`
	Bytes   int64  `json:"bytes"`
}

// FeatureDims are the vocabulary sizes of the atom and bond features.
type FeatureDims struct {
	Atom []int `json:"atom"`
	Bond []int `json:"bond"`
}

// Manifest is the outcome of one build of a split mode.
type Manifest struct {
	BuildID           string               `json:"build_id"`
	Dataset           string               `json:"dataset"`
	SplitMode         string               `json:"split_mode"`
	ProcessedFilename string               `json:"processed_filename"`
	Splits            map[string]SplitInfo `json:"splits"`
	Targets           []string             `json:"targets"`
	FeatureDims       FeatureDims          `json:"feature_dims"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Column is one stored field of a split.
type Column struct {
	Name     string `json:"name"`
	DType    string `json:"dtype"`
	Scalar   bool   `json:"scalar"`
	RowShape []int  `json:"row_shape,omitempty"`
}

// Split summarizes one processed split.
type Split struct {
	SplitMode string   `json:"split_mode"`
	Split     string   `json:"split"`
	BuildID   string   `json:"build_id"`
	Records   int      `json:"records"`
	Bytes     int64    `json:"bytes"`
	Size      string   `json:"size"`
	Location  string   `json:"location"`
	Columns   []Column `json:"columns"`
}

// RecordOptions select an access-time 3D transform.
type RecordOptions struct {
	// Transform is pred3d, gt3d or rdkit3d; empty returns the stored record.
	Transform string
	// Target is a target column index or name.
	Target string
	// ConfID picks the rdkit3d conformer; nil uses the server default.
	ConfID *int
}

func (o *RecordOptions) values() url.Values {
	v := url.Values{}
	if o == nil {
		return v
	}
	if o.Transform != "" {
		v.Set("transform", o.Transform)
	}
	if o.Target != "" {
		v.Set("target", o.Target)
	}
	if o.ConfID != nil {
		v.Set("conf_id", strconv.Itoa(*o.ConfID))
	}
	return v
}

// Record is one record of a split.
type Record struct {
	SplitMode string         `json:"split_mode"`
	Split     string         `json:"split"`
	Index     int            `json:"index"`
	Transform string         `json:"transform,omitempty"`
	Target    *int           `json:"target,omitempty"`
	ElapsedMS float64        `json:"elapsed_ms"`
	Record    *mtypes.Record `json:"record"`
}

// ---------------------------------------------------------------------------
// DatasetsClient
// ---------------------------------------------------------------------------

// DatasetsClient reads manifests, splits and records.
type DatasetsClient struct {
	client *Client
}

func validateMode(mode string) error {
	if mode == "" {
		return errors.New(errors.ErrCodeBadRequest, "split mode is required")
	}
	return nil
}

// Manifest returns the current manifest of mode.
func (d *DatasetsClient) Manifest(ctx context.Context, mode string) (*Manifest, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	var m Manifest
	if err := d.client.get(ctx, fmt.Sprintf("/api/v1/datasets/%s/manifest", url.PathEscape(mode)), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Split returns the summary of one split of mode.
func (d *DatasetsClient) Split(ctx context.Context, mode, split string) (*Split, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	if split == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "split is required")
	}
	var s Split
	path := fmt.Sprintf("/api/v1/datasets/%s/splits/%s", url.PathEscape(mode), url.PathEscape(split))
	if err := d.client.get(ctx, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Record returns record index of a split, transformed when opts names a
// transform.
func (d *DatasetsClient) Record(ctx context.Context, mode, split string, index int, opts *RecordOptions) (*Record, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	if split == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "split is required")
	}
	if index < 0 {
		return nil, errors.Newf(errors.ErrCodeBadRequest, "index must be >= 0, got %d", index)
	}
	var r Record
	path := fmt.Sprintf("/api/v1/datasets/%s/splits/%s/records/%d", url.PathEscape(mode), url.PathEscape(split), index)
	if err := d.client.get(ctx, path, opts.values(), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
