package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/domain/labels"
)

func sampleLabels(serials ...string) []labels.Label {
	out := make([]labels.Label, len(serials))
	for i, s := range serials {
		out[i] = labels.Label{Serial: s, ProductName: "Nitrile gloves", PackQuantity: decimal.RequireFromString("12.5")}
	}
	return out
}

func TestCode128_Tiers(t *testing.T) {
	primary, err := Code128("BX000001", PrimaryTier)
	require.NoError(t, err)
	degrade, err := Code128("BX000001", DegradeTier)
	require.NoError(t, err)

	assert.Equal(t, 3*degrade.Width, primary.Width)
	assert.Equal(t, 354, primary.Height)
	assert.True(t, bytes.HasPrefix(primary.PNG, []byte("\x89PNG")))
}

func TestRasterize_FallsBackToDegradeTier(t *testing.T) {
	enc := func(serial string, tier Tier) (*Raster, error) {
		if tier.Name == PrimaryTier.Name {
			return nil, errors.New("too wide")
		}
		return Code128(serial, tier)
	}

	r, err := rasterize(enc, "BX000002", []Tier{PrimaryTier, DegradeTier})
	require.NoError(t, err)
	assert.Equal(t, DegradeTier.Name, r.Tier)
}

func TestRasterize_BothTiersFail(t *testing.T) {
	boom := errors.New("boom")
	enc := func(string, Tier) (*Raster, error) { return nil, boom }

	_, err := rasterize(enc, "BX000002", []Tier{PrimaryTier, DegradeTier})
	var rerr *RasterError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "BX000002", rerr.Serial)
	assert.Len(t, rerr.Errs, 2)
	assert.ErrorIs(t, err, boom)
}

func TestRender_ProducesPDF(t *testing.T) {
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10), Workers: 4})

	out, err := r.Render(context.Background(), sampleLabels("BX000001", "BX000002", "BX000003"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRender_ManyPages(t *testing.T) {
	serials := make([]string, 100)
	for i := range serials {
		serials[i] = fmt.Sprintf("BX%06d", i+1)
	}
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10), Workers: 8})

	out, err := r.Render(context.Background(), sampleLabels(serials...))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_OneUnrenderableSerialFailsTheDocument(t *testing.T) {
	var calls atomic.Int32
	enc := func(serial string, tier Tier) (*Raster, error) {
		calls.Add(1)
		if serial == "BX000002" {
			return nil, errors.New("scanner test failure")
		}
		return Code128(serial, tier)
	}
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10), Workers: 1, Encoder: enc})

	out, err := r.Render(context.Background(), sampleLabels("BX000001", "BX000002", "BX000003"))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BX000002")
}

func TestRender_KeepsInputOrder(t *testing.T) {
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10), Workers: 8})
	items := sampleLabels("BX000005", "BX000001", "BX000009", "BX000003")

	rasters, err := r.rasterizeAll(context.Background(), items)
	require.NoError(t, err)
	for i, item := range items {
		assert.Equal(t, item.Serial, rasters[i].Serial)
	}
}

func TestRender_EmptyInput(t *testing.T) {
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10)})
	_, err := r.Render(context.Background(), nil)
	assert.Error(t, err)
}

func TestRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewLabelRenderer(Config{Geometry: A4(3, 38, 10)})

	_, err := r.Render(ctx, sampleLabels("BX000001"))
	assert.ErrorIs(t, err, context.Canceled)
}
