// Package imagestore persists uploaded images below a per-user media tree.
//
// Layout under the media root:
//
//	<root>/<username>/input_images/<filename>
//	<root>/<username>/detection_images/<filename>
package imagestore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

const (
	inputDir     = "input_images"
	detectionDir = "detection_images"
)

// Sentinel errors returned for unusable request values.
var (
	ErrInvalidUsername = errors.NewStd("invalid username")
	ErrInvalidFilename = errors.NewStd("invalid filename")
)

// Stored describes an image written by Save.
type Stored struct {
	PhysicalPath string // absolute or root-relative filesystem path
	PublicPath   string // media URL path without leading slash
	Filename     string // sanitized file name
}

// Store writes images below a media root.
type Store struct {
	root     string
	mediaURL string
	log      logger.Logger
}

// New returns a Store rooted at root that builds public paths from mediaURL.
func New(root, mediaURL string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Store{
		root:     root,
		mediaURL: strings.TrimLeft(mediaURL, "/"),
		log:      log.Module("imagestore"),
	}
}

// Root returns the media root directory.
func (s *Store) Root() string { return s.root }

// Save streams r into the user's input directory. The file becomes visible
// under its final name only after it is completely written, and an existing
// file with the same name is replaced.
func (s *Store) Save(ctx context.Context, username, filename string, r io.Reader) (Stored, error) {
	start := time.Now()

	if err := ValidateUsername(username); err != nil {
		return Stored{}, err
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return Stored{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	dir := filepath.Join(s.root, username, inputDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, s.storageError(err, "create-directory")
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Stored{}, s.storageError(err, "create-temp")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return Stored{}, s.storageError(err, "write")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return Stored{}, s.storageError(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Stored{}, s.storageError(err, "close")
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return Stored{}, s.storageError(err, "rename")
	}

	stored := Stored{
		PhysicalPath: target,
		PublicPath:   s.PublicPath(username, name),
		Filename:     name,
	}
	s.log.Debug("image stored",
		logger.String("username", username),
		logger.String("filename", name),
		logger.Int64("bytes", written),
		logger.Duration("elapsed", time.Since(start)))
	return stored, nil
}

// PublicPath returns the media URL path of an input image.
func (s *Store) PublicPath(username, filename string) string {
	return path.Join(s.mediaURL, username, inputDir, filename)
}

// DetectionPublicPath returns the media URL path of an annotated copy.
func (s *Store) DetectionPublicPath(username, filename string) string {
	return path.Join(s.mediaURL, username, detectionDir, filename)
}

// DetectionPath returns the filesystem path for the annotated copy of filename,
// creating the user's detection directory when needed.
func (s *Store) DetectionPath(username, filename string) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, username, detectionDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", s.storageError(err, "create-directory")
	}
	return filepath.Join(dir, name), nil
}

// Remove deletes an input image, given by its public path, and its annotated
// copy. Paths that do not point into the user's input directory are rejected.
func (s *Store) Remove(username, publicPath string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}

	rel := strings.TrimPrefix(strings.TrimLeft(publicPath, "/"), s.mediaURL)
	rel = strings.TrimLeft(rel, "/")
	prefix := username + "/" + inputDir + "/"
	if !strings.HasPrefix(rel, prefix) {
		return errors.New(ErrInvalidFilename).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Context("reason", "outside-user-tree").
			Build()
	}
	name, err := SanitizeFilename(strings.TrimPrefix(rel, prefix))
	if err != nil || name != strings.TrimPrefix(rel, prefix) {
		return errors.New(ErrInvalidFilename).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Context("reason", "nested-path").
			Build()
	}

	input := filepath.Join(s.root, username, inputDir, name)
	if err := os.Remove(input); err != nil {
		if os.IsNotExist(err) {
			return errors.New(err).
				Component("imagestore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return s.storageError(err, "remove")
	}

	detection := filepath.Join(s.root, username, detectionDir, name)
	if err := os.Remove(detection); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove annotated copy",
			logger.String("username", username),
			logger.String("filename", name),
			logger.Error(err))
	}

	s.log.Info("image removed",
		logger.String("username", username),
		logger.String("filename", name))
	return nil
}

func (s *Store) storageError(err error, op string) error {
	return errors.New(err).
		Component("imagestore").
		Category(errors.CategoryImageStorage).
		Context("operation", op).
		Build()
}

// ValidateUsername rejects names that are empty or could escape the media root.
func ValidateUsername(username string) error {
	switch {
	case strings.TrimSpace(username) == "",
		username == ".", username == "..",
		strings.ContainsAny(username, `/\`),
		strings.ContainsRune(username, 0):
		return errors.New(ErrInvalidUsername).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// SanitizeFilename reduces a client supplied name to a safe base name in NFC form.
func SanitizeFilename(filename string) (string, error) {
	name := strings.ReplaceAll(filename, `\`, "/")
	name = path.Base(name)
	name = norm.NFC.String(strings.TrimSpace(name))

	switch {
	case name == "", name == ".", name == "..", name == "/",
		strings.ContainsRune(name, 0):
		return "", errors.New(ErrInvalidFilename).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return name, nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
