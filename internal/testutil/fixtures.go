// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/datastore"
)

// FishCatalogSize is the number of species in the embedded catalog.
const FishCatalogSize = 15

// Settings returns settings with a temporary media root and SQLite file.
// Metrics are enabled so handlers can be checked against /metrics.
func Settings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()

	s := &conf.Settings{}
	s.Media = conf.MediaSettings{Root: filepath.Join(dir, "media"), URL: "/media/"}
	s.WebServer = conf.WebServerSettings{Port: "0", MaxUploadSize: "1M"}
	s.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: filepath.Join(dir, "fishnet.db")}
	s.Metrics = conf.MetricsSettings{Enabled: true, Path: "/metrics"}
	s.Annotation = conf.AnnotationSettings{Thickness: 2, FontScale: 1, Color: "#00ff00", JPEGQuality: 90}
	return s
}

// OpenSeededStore opens the database described by settings, seeds the fish
// catalog and closes the store when the test ends.
func OpenSeededStore(t *testing.T, settings *conf.Settings, opts ...datastore.Option) datastore.Interface {
	t.Helper()

	store, err := datastore.New(settings, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	seeded, err := store.SeedFishCatalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, FishCatalogSize, seeded)
	return store
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// PNG encodes a small opaque test image.
func PNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, SolidImage(32, 32, color.NRGBA{R: 40, G: 90, B: 160, A: 255})))
	return buf.Bytes()
}
