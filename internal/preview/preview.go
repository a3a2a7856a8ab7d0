// Package preview renders augmented examples into contact sheets so a
// job's output can be eyeballed without pulling the full shard.
package preview

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dunamismax/augflow/internal/cifar"
	"github.com/dunamismax/augflow/internal/dataset"
)

// SheetOptions controls contact sheet layout.
type SheetOptions struct {
	// Columns is the number of tiles per row.
	Columns int
	// Scale multiplies the source resolution per tile, so 32px images
	// at scale 4 render as 128px tiles.
	Scale int
	// Margin is the pixel gap around tiles.
	Margin int
	// Captions draws each example's class name under its tile.
	Captions bool
}

// DefaultSheetOptions renders eight 4x-scaled tiles per row with
// class-name captions.
func DefaultSheetOptions() SheetOptions {
	return SheetOptions{Columns: 8, Scale: 4, Margin: 8, Captions: true}
}

func (o SheetOptions) normalized() SheetOptions {
	if o.Columns < 1 {
		o.Columns = 8
	}
	if o.Scale < 1 {
		o.Scale = 1
	}
	if o.Margin < 0 {
		o.Margin = 0
	}
	return o
}

var (
	sheetBackground = color.NRGBA{R: 24, G: 24, B: 27, A: 255}
	captionColor    = color.NRGBA{R: 212, G: 212, B: 216, A: 255}
)

// RenderSheet lays the examples out on a tile grid, row-major in slice
// order, and returns the composed sheet.
func RenderSheet(examples []dataset.Example, opts SheetOptions) (*image.NRGBA, error) {
	if len(examples) == 0 {
		return nil, errors.New("preview: no examples to render")
	}
	opts = opts.normalized()

	tile := examples[0].Image.Width() * opts.Scale
	tileH := examples[0].Image.Height() * opts.Scale
	captionH := 0
	if opts.Captions {
		captionH = basicfont.Face7x13.Metrics().Height.Ceil() + 2
	}

	cols := opts.Columns
	if cols > len(examples) {
		cols = len(examples)
	}
	rows := (len(examples) + cols - 1) / cols

	cellW := tile + opts.Margin
	cellH := tileH + captionH + opts.Margin
	canvas := imaging.New(cols*cellW+opts.Margin, rows*cellH+opts.Margin, sheetBackground)

	for i, ex := range examples {
		if ex.Image == nil {
			return nil, errors.New("preview: example has no image")
		}
		scaled := imaging.Resize(ex.Image.ToNRGBA(), ex.Image.Width()*opts.Scale, ex.Image.Height()*opts.Scale, imaging.NearestNeighbor)
		x := opts.Margin + (i%cols)*cellW
		y := opts.Margin + (i/cols)*cellH
		canvas = imaging.Paste(canvas, scaled, image.Pt(x, y))
		if opts.Captions {
			drawCaption(canvas, cifar.ClassName(ex.Label), x, y+tileH, tile)
		}
	}
	return canvas, nil
}

// drawCaption writes text left-aligned under a tile, truncated to the
// tile width.
func drawCaption(dst *image.NRGBA, text string, x, top, width int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(captionColor),
		Face: face,
	}
	for len(text) > 0 && drawer.MeasureString(text).Ceil() > width {
		text = text[:len(text)-1]
	}
	if text == "" {
		return
	}
	drawer.Dot = fixed.P(x, top+face.Metrics().Ascent.Ceil()+1)
	drawer.DrawString(text)
}
