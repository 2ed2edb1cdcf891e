// Package render draws barcode label sheets as PDF documents.
package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"backoffice/internal/domain/labels"
	"backoffice/pkg/logger"
)

var (
	_ labels.Renderer    = (*LabelRenderer)(nil)
	_ labels.SerialError = (*RasterError)(nil)
)

// Config configures LabelRenderer.
type Config struct {
	Geometry Geometry
	// Workers bounds concurrent rasterization.
	Workers int
	// Tiers overrides the raster tiers; defaults to primary then degrade.
	Tiers []Tier
	// Encoder overrides the barcode encoder; defaults to Code128.
	Encoder Encoder
}

// LabelRenderer rasterizes serials on a bounded pool and composes them into
// a paginated grid.
type LabelRenderer struct {
	geometry Geometry
	workers  int
	tiers    []Tier
	encode   Encoder
}

// NewLabelRenderer creates a renderer.
func NewLabelRenderer(cfg Config) *LabelRenderer {
	r := &LabelRenderer{
		geometry: cfg.Geometry,
		workers:  cfg.Workers,
		tiers:    cfg.Tiers,
		encode:   cfg.Encoder,
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if len(r.tiers) == 0 {
		r.tiers = []Tier{PrimaryTier, DegradeTier}
	}
	if r.encode == nil {
		r.encode = Code128
	}
	return r
}

// Render implements labels.Renderer. Any serial that no tier can rasterize
// fails the whole document.
func (r *LabelRenderer) Render(ctx context.Context, items []labels.Label) ([]byte, error) {
	if len(items) == 0 {
		return nil, errors.New("nothing to render")
	}

	rasters, err := r.rasterizeAll(ctx, items)
	if err != nil {
		return nil, err
	}

	out, err := composePDF(items, rasters, ComputeLayout(len(items), r.geometry), r.geometry)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("render produced an empty document")
	}

	logger.Debug(ctx, "label sheet rendered",
		"labels", len(items),
		"pages", PageCount(len(items), r.geometry),
		"bytes", len(out))
	return out, nil
}

// rasterizeAll keeps input order: result i belongs to items[i].
func (r *LabelRenderer) rasterizeAll(ctx context.Context, items []labels.Label) ([]*Raster, error) {
	rasters := make([]*Raster, len(items))

	p := pool.New().
		WithMaxGoroutines(r.workers).
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raster, err := rasterize(r.encode, item.Serial, r.tiers)
			if err != nil {
				return err
			}
			if raster.Tier != r.tiers[0].Name {
				logger.Warn(ctx, "label rasterized at degraded tier", "serial", item.Serial, "tier", raster.Tier)
			}
			rasters[i] = raster
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("render labels: %w", err)
	}
	return rasters, nil
}
