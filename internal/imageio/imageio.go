// Package imageio decodes stored uploads and encodes annotated copies.
package imageio

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// registers the webp decoder with image.Decode
	_ "golang.org/x/image/webp"

	"github.com/tphakala/fishnet-go/internal/errors"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 95

// Decode reads the image at path, applying the EXIF orientation tag.
func Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(err).
				Component("imageio").
				Category(errors.CategoryFileIO).
				Context("operation", "open").
				Build()
		}
		return nil, errors.New(err).
			Component("imageio").
			Category(errors.CategoryImageDecode).
			Context("extension", strings.ToLower(filepath.Ext(path))).
			Build()
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.Newf("image has no pixels").
			Component("imageio").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return img, nil
}

// DecodeReader decodes an image from r, applying the EXIF orientation tag.
func DecodeReader(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).
			Component("imageio").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return img, nil
}

// Encode writes img to w in the format implied by filename's extension.
// Unknown extensions are encoded as JPEG.
func Encode(w io.Writer, filename string, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var err error
	if isWebP(filename) {
		err = webp.Encode(w, img, &webp.Options{Lossless: false, Quality: float32(quality)})
	} else {
		format, ferr := imaging.FormatFromFilename(filename)
		if ferr != nil {
			format = imaging.JPEG
		}
		err = imaging.Encode(w, img, format, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return errors.New(err).
			Component("imageio").
			Category(errors.CategoryImageEncode).
			Context("extension", strings.ToLower(filepath.Ext(filename))).
			Build()
	}
	return nil
}

// Save encodes img into path. The file is written to a temporary name in the
// same directory and renamed into place.
func Save(path string, img image.Image, quality int) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".annotated-*")
	if err != nil {
		return errors.New(err).
			Component("imageio").
			Category(errors.CategoryFileIO).
			Context("operation", "create-temp").
			Build()
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, filepath.Base(path), img, quality); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("imageio").
			Category(errors.CategoryFileIO).
			Context("operation", "close").
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("imageio").
			Category(errors.CategoryFileIO).
			Context("operation", "rename").
			Build()
	}
	return nil
}

func isWebP(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".webp")
}
