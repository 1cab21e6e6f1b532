package detector

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// padColor is the gray YOLOv5 fills letterbox borders with.
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterboxInfo records how an original image was placed on the model canvas.
type letterboxInfo struct {
	size   int // canvas side
	w0, h0 int // original image size
	gain   float64
	padX   float64
	padY   float64
}

func newLetterboxInfo(w0, h0, size int) letterboxInfo {
	s := float64(size)
	gain := math.Min(s/float64(h0), s/float64(w0))
	return letterboxInfo{
		size: size,
		w0:   w0,
		h0:   h0,
		gain: gain,
		padX: (s - float64(w0)*gain) / 2,
		padY: (s - float64(h0)*gain) / 2,
	}
}

// letterbox resizes img to fit a size x size canvas keeping its aspect ratio
// and centers it on a gray background.
func letterbox(img image.Image, size int) (*image.NRGBA, letterboxInfo) {
	b := img.Bounds()
	info := newLetterboxInfo(b.Dx(), b.Dy(), size)

	newW := int(math.RoundToEven(float64(info.w0) * info.gain))
	newH := int(math.RoundToEven(float64(info.h0) * info.gain))
	dw := float64(size-newW) / 2
	dh := float64(size-newH) / 2
	left := int(math.RoundToEven(dw - 0.1))
	top := int(math.RoundToEven(dh - 0.1))

	var resized image.Image = img
	if newW != info.w0 || newH != info.h0 {
		resized = imaging.Resize(img, newW, newH, imaging.Linear)
	}

	canvas := imaging.New(size, size, padColor)
	canvas = imaging.Paste(canvas, resized, image.Pt(left, top))
	return canvas, info
}

// scaleBox maps xyxy model coordinates back to the original image, clipping
// to its bounds and rounding half to even.
func (lb letterboxInfo) scaleBox(x1, y1, x2, y2 float32) Box {
	fx := func(v float32) int {
		x := (float64(v) - lb.padX) / lb.gain
		return int(math.RoundToEven(clamp(x, 0, float64(lb.w0))))
	}
	fy := func(v float32) int {
		y := (float64(v) - lb.padY) / lb.gain
		return int(math.RoundToEven(clamp(y, 0, float64(lb.h0))))
	}
	return Box{X1: fx(x1), Y1: fy(y1), X2: fx(x2), Y2: fy(y2)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// fillTensor writes canvas pixels as RGB floats in [0,1]. NHWC is used unless
// nchw is set.
func fillTensor(dst []float32, canvas *image.NRGBA, nchw bool) {
	size := canvas.Rect.Dx()
	plane := size * size
	for y := range size {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+size*4]
		for x := range size {
			r := float32(row[x*4]) / 255
			g := float32(row[x*4+1]) / 255
			b := float32(row[x*4+2]) / 255
			i := y*size + x
			if nchw {
				dst[i] = r
				dst[plane+i] = g
				dst[2*plane+i] = b
			} else {
				dst[i*3] = r
				dst[i*3+1] = g
				dst[i*3+2] = b
			}
		}
	}
}
