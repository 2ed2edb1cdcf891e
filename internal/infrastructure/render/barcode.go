package render

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

// Tier is one rasterization setting. The caption is never drawn into the
// image; the sheet prints it as text below.
type Tier struct {
	Name        string
	ModuleScale int
	HeightPx    int
}

// Raster tiers, tried in order. Heights are at 300 dpi: 354 px is 30 mm.
var (
	PrimaryTier = Tier{Name: "primary", ModuleScale: 3, HeightPx: 354}
	DegradeTier = Tier{Name: "degrade", ModuleScale: 1, HeightPx: 177}
)

// Raster is a PNG image of one serial.
type Raster struct {
	Serial string
	Tier   string
	PNG    []byte
	Width  int
	Height int
}

// Encoder rasterizes a serial at a tier.
type Encoder func(serial string, tier Tier) (*Raster, error)

// Code128 encodes serial as a Code 128 PNG.
func Code128(serial string, tier Tier) (*Raster, error) {
	bc, err := code128.Encode(serial)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", serial, err)
	}

	width := bc.Bounds().Dx() * tier.ModuleScale
	scaled, err := barcode.Scale(bc, width, tier.HeightPx)
	if err != nil {
		return nil, fmt.Errorf("scale %s: %w", serial, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("png %s: %w", serial, err)
	}
	return &Raster{Serial: serial, Tier: tier.Name, PNG: buf.Bytes(), Width: width, Height: tier.HeightPx}, nil
}

// rasterize tries each tier in order and fails only when all of them fail.
func rasterize(enc Encoder, serial string, tiers []Tier) (*Raster, error) {
	var errs []error
	for _, tier := range tiers {
		r, err := enc(serial, tier)
		if err == nil {
			return r, nil
		}
		errs = append(errs, fmt.Errorf("%s tier: %w", tier.Name, err))
	}
	return nil, &RasterError{Serial: serial, Errs: errs}
}

// RasterError reports a serial no tier could rasterize.
type RasterError struct {
	Serial string
	Errs   []error
}

func (e *RasterError) Error() string {
	return fmt.Sprintf("rasterize %s: all tiers failed: %v", e.Serial, e.Errs)
}

// FailedSerial implements labels.SerialError.
func (e *RasterError) FailedSerial() string {
	return e.Serial
}

func (e *RasterError) Unwrap() []error {
	return e.Errs
}
