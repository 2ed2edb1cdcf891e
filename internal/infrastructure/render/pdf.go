package render

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"backoffice/internal/domain/labels"
)

const (
	cellPadding    = 2.0
	captionLineMM  = 3.5
	captionLines   = 3
	captionFontPt  = 7
	captionFont    = "Helvetica"
	imageMaxHeight = 30.0
)

// composePDF draws rasters and captions into cells. len(rasters) equals
// len(items) equals len(cells).
func composePDF(items []labels.Label, rasters []*Raster, cells []Cell, g Geometry) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(g.Margin, g.Margin, g.Margin)
	pdf.SetFont(captionFont, "", captionFontPt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	page := -1
	for i, cell := range cells {
		for page < cell.Page {
			pdf.AddPageFormat("P", fpdf.SizeType{Wd: g.PageWidth, Ht: g.PageHeight})
			page++
		}

		r := rasters[i]
		name := fmt.Sprintf("label-%d", i)
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(r.PNG))

		imgW, imgH := fitImage(r, cell)
		if imgW == 0 {
			return nil, fmt.Errorf("cell %.1fx%.1fmm too small for label %s", cell.Width, cell.Height, items[i].Serial)
		}
		imgX := cell.X + (cell.Width-imgW)/2
		imgY := cell.Y + cellPadding
		pdf.ImageOptions(name, imgX, imgY, imgW, imgH, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		lines := []string{
			items[i].Serial,
			items[i].ProductName,
			"Qty: " + items[i].PackQuantity.String(),
		}
		y := imgY + imgH + 1
		for _, line := range lines {
			pdf.SetXY(cell.X+cellPadding, y)
			pdf.CellFormat(cell.Width-2*cellPadding, captionLineMM, tr(line), "", 0, "C", false, 0, "")
			y += captionLineMM
		}

		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("compose %s: %w", items[i].Serial, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitImage scales the raster into the cell above the caption block,
// preserving aspect ratio.
func fitImage(r *Raster, cell Cell) (w, h float64) {
	maxW := cell.Width - 2*cellPadding
	maxH := cell.Height - 2*cellPadding - captionLines*captionLineMM - 1
	if maxH > imageMaxHeight {
		maxH = imageMaxHeight
	}
	if maxH <= 0 || maxW <= 0 || r.Width == 0 || r.Height == 0 {
		return 0, 0
	}

	aspect := float64(r.Height) / float64(r.Width)
	w, h = maxW, maxW*aspect
	if h > maxH {
		h = maxH
		w = h / aspect
	}
	return w, h
}
