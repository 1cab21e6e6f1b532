// Package annotate draws the detected box and its confidence onto a copy of
// an image.
package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tphakala/fishnet-go/internal/detector"
	"github.com/tphakala/fishnet-go/internal/imageio"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// textOffset is the gap between the label baseline and the top of the box.
const textOffset = 10

// Style controls how boxes and labels are drawn.
type Style struct {
	Thickness int
	FontScale int
	Color     color.NRGBA
}

// DefaultStyle is a green box ten pixels wide with a large label.
func DefaultStyle() Style {
	return Style{
		Thickness: 10,
		FontScale: 10,
		Color:     color.NRGBA{G: 255, A: 255},
	}
}

func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.Thickness <= 0 {
		s.Thickness = d.Thickness
	}
	if s.FontScale <= 0 {
		s.FontScale = d.FontScale
	}
	if s.Color.A == 0 {
		s.Color = d.Color
	}
	return s
}

// Renderer produces annotated copies of detection images.
type Renderer struct {
	style   Style
	quality int
	log     logger.Logger
}

// New returns a Renderer. quality is the JPEG/WebP quality used by Save.
func New(style Style, quality int, log logger.Logger) *Renderer {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Renderer{
		style:   style.withDefaults(),
		quality: quality,
		log:     log.Module("annotate"),
	}
}

// Render returns a copy of img with box outlined and text written above its
// top left corner. img itself is left untouched.
func (r *Renderer) Render(img image.Image, box detector.Box, text string) *image.NRGBA {
	out := imaging.Clone(img)
	r.drawBox(out, box.Rect())
	if text != "" {
		out = r.drawText(out, image.Pt(box.X1, box.Y1-textOffset), text)
	}
	return out
}

// Save renders the annotation and writes it to path, replacing any file
// already there.
func (r *Renderer) Save(path string, img image.Image, box detector.Box, text string) error {
	start := time.Now()
	out := r.Render(img, box, text)
	if err := imageio.Save(path, out, r.quality); err != nil {
		return err
	}
	r.log.Debug("annotated image written",
		logger.String("path", path),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// drawBox strokes rect with lines centered on its edges.
func (r *Renderer) drawBox(dst *image.NRGBA, rect image.Rectangle) {
	t := r.style.Thickness
	outer := image.Rect(rect.Min.X-t/2, rect.Min.Y-t/2, rect.Max.X+t-t/2, rect.Max.Y+t-t/2)
	inner := outer.Inset(t)
	fill := image.NewUniform(r.style.Color)

	edges := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+t), // top
		image.Rect(outer.Min.X, outer.Max.Y-t, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+t, outer.Max.Y), // left
		image.Rect(outer.Max.X-t, outer.Min.Y, outer.Max.X, outer.Max.Y), // right
	}
	if inner.Empty() {
		edges = []image.Rectangle{outer}
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
	}
}

// drawText renders text with the 7x13 bitmap face, enlarges it by the font
// scale and blends it onto dst with its baseline starting at origin.
func (r *Renderer) drawText(dst *image.NRGBA, origin image.Point, text string) *image.NRGBA {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()

	d := &font.Drawer{Face: face, Src: image.NewUniform(r.style.Color)}
	width := d.MeasureString(text).Ceil()
	if width <= 0 {
		return dst
	}

	glyphs := image.NewNRGBA(image.Rect(0, 0, width, height))
	d.Dst = glyphs
	d.Dot = fixed.P(0, ascent)
	d.DrawString(text)

	scale := r.style.FontScale
	scaled := imaging.Resize(glyphs, width*scale, height*scale, imaging.NearestNeighbor)
	pos := image.Pt(origin.X, origin.Y-ascent*scale)
	return imaging.Overlay(dst, scaled, pos, 1.0)
}
