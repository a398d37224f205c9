package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/storage/tensorfile"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// SplitReader is the read side of one processed split.
type SplitReader interface {
	Name() string
	Len() int
	Size() int64
	BuildID() string
	Location() string
	Columns() []tensorfile.Column
	Get(ctx context.Context, i int) (*mtypes.Record, error)
}

// DatasetService resolves manifests and splits of processed split modes.
type DatasetService interface {
	Manifest(ctx context.Context, mode string) (*dataset.Manifest, error)
	Split(ctx context.Context, mode, split string) (SplitReader, error)
}

type catalogService struct{ c *dataset.Catalog }

// CatalogService serves a dataset.Catalog.
func CatalogService(c *dataset.Catalog) DatasetService { return catalogService{c: c} }

func (s catalogService) Manifest(ctx context.Context, mode string) (*dataset.Manifest, error) {
	return s.c.Manifest(ctx, mode)
}

func (s catalogService) Split(ctx context.Context, mode, split string) (SplitReader, error) {
	sp, err := s.c.Split(ctx, mode, split)
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// TransformFactory builds the access-time transform named by name.
type TransformFactory func(name string, target, confID int) (dataset.Transform, error)

// DatasetHandler serves manifests, split summaries and single records.
type DatasetHandler struct {
	svc        DatasetService
	transforms TransformFactory
	logger     logging.Logger
}

// NewDatasetHandler returns a handler over svc. A nil transforms factory
// rejects every transform query.
func NewDatasetHandler(svc DatasetService, transforms TransformFactory, logger logging.Logger) *DatasetHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DatasetHandler{svc: svc, transforms: transforms, logger: logger.Named("dataset_handler")}
}

// RegisterRoutes mounts the dataset routes under rg.
func (h *DatasetHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/datasets/:mode")
	g.GET("/manifest", h.GetManifest)
	g.GET("/splits/:split", h.GetSplit)
	g.GET("/splits/:split/records/:index", h.GetRecord)
}

// GetManifest handles GET /datasets/:mode/manifest.
func (h *DatasetHandler) GetManifest(c *gin.Context) {
	m, err := h.svc.Manifest(c.Request.Context(), c.Param("mode"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// SplitResponse summarizes one processed split.
type SplitResponse struct {
	SplitMode string              `json:"split_mode"`
	Split     string              `json:"split"`
	BuildID   string              `json:"build_id"`
	Records   int                 `json:"records"`
	Bytes     int64               `json:"bytes"`
	Size      string              `json:"size"`
	Location  string              `json:"location"`
	Columns   []tensorfile.Column `json:"columns"`
}

// GetSplit handles GET /datasets/:mode/splits/:split.
func (h *DatasetHandler) GetSplit(c *gin.Context) {
	mode := c.Param("mode")
	s, err := h.svc.Split(c.Request.Context(), mode, c.Param("split"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, SplitResponse{
		SplitMode: mode,
		Split:     s.Name(),
		BuildID:   s.BuildID(),
		Records:   s.Len(),
		Bytes:     s.Size(),
		Size:      humanize.Bytes(uint64(s.Size())),
		Location:  s.Location(),
		Columns:   s.Columns(),
	})
}

// RecordResponse carries one record, transformed when asked.
type RecordResponse struct {
	SplitMode string         `json:"split_mode"`
	Split     string         `json:"split"`
	Index     int            `json:"index"`
	Transform string         `json:"transform,omitempty"`
	Target    *int           `json:"target,omitempty"`
	ElapsedMS float64        `json:"elapsed_ms"`
	Record    *mtypes.Record `json:"record"`
}

// GetRecord handles GET /datasets/:mode/splits/:split/records/:index.
// Optional query parameters: transform (pred3d, gt3d, rdkit3d), target
// (column index or name, default 0) and conf_id (default -1).
func (h *DatasetHandler) GetRecord(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()
	mode := c.Param("mode")

	index, err := intParam(c, "index")
	if err != nil {
		writeAppError(c, err)
		return
	}
	s, err := h.svc.Split(ctx, mode, c.Param("split"))
	if err != nil {
		writeAppError(c, err)
		return
	}

	resp := RecordResponse{SplitMode: mode, Split: s.Name(), Index: index}
	var t dataset.Transform
	if name := c.Query("transform"); name != "" {
		target, err := h.resolveTarget(ctx, mode, c.Query("target"))
		if err != nil {
			writeAppError(c, err)
			return
		}
		confID, err := intQuery(c, "conf_id", -1)
		if err != nil {
			writeAppError(c, err)
			return
		}
		if h.transforms == nil {
			writeError(c, http.StatusBadRequest, errors.ErrCodeBadRequest, "transforms are not enabled")
			return
		}
		if t, err = h.transforms(name, target, confID); err != nil {
			writeAppError(c, err)
			return
		}
		resp.Transform = name
		resp.Target = &target
	}

	rec, err := s.Get(ctx, index)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if t != nil {
		if rec, err = t.Apply(ctx, rec); err != nil {
			h.logger.Warn("transform failed",
				logging.String("transform", resp.Transform),
				logging.Int("index", index),
				logging.Err(err))
			writeAppError(c, err)
			return
		}
	}
	resp.Record = rec
	resp.ElapsedMS = float64(time.Since(start).Microseconds()) / 1e3
	c.JSON(http.StatusOK, resp)
}

// resolveTarget accepts a column index or a target name from the manifest.
func (h *DatasetHandler) resolveTarget(ctx context.Context, mode, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	m, err := h.svc.Manifest(ctx, mode)
	if err != nil {
		return 0, err
	}
	i, ok := m.TargetIndex(raw)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeTargetOutOfRange, "unknown target %q", raw)
	}
	return i, nil
}
