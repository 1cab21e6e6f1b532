//go:build !opencv

package detector

import (
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// NewONNX is only available in builds with the opencv tag.
func NewONNX(path string, cfg Config, log logger.Logger) (Detector, error) {
	return nil, errors.Newf("onnx detector backend requires a build with -tags opencv").
		Component("detector").
		Category(errors.CategoryConfiguration).
		Build()
}
