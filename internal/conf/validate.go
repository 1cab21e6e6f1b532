// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateMediaSettings,
		validateDetectorSettings,
		validateClassifierSettings,
		validateInferenceSettings,
		validateAnnotationSettings,
		validateWebServerSettings,
		validateOutputSettings,
		validateMQTTSettings,
	}
	for _, v := range validators {
		ve.Errors = append(ve.Errors, v(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMediaSettings(s *Settings) []string {
	var errs []string
	if strings.TrimSpace(s.Media.Root) == "" {
		errs = append(errs, "media.root must not be empty")
	}
	if !strings.HasPrefix(s.Media.URL, "/") {
		errs = append(errs, fmt.Sprintf("media.url must start with '/', got %q", s.Media.URL))
	}
	return errs
}

func validateDetectorSettings(s *Settings) []string {
	d := &s.Detector
	var errs []string
	switch d.Backend {
	case "tflite", "onnx":
	default:
		errs = append(errs, fmt.Sprintf("detector.backend must be tflite or onnx, got %q", d.Backend))
	}
	if d.ModelPath == "" {
		errs = append(errs, "detector.modelpath must not be empty")
	}
	if d.InputSize <= 0 || d.InputSize%32 != 0 {
		errs = append(errs, fmt.Sprintf("detector.inputsize must be a positive multiple of 32, got %d", d.InputSize))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("detector.confidence must be between 0 and 1, got %g", d.Confidence))
	}
	if d.IoU < 0 || d.IoU > 1 {
		errs = append(errs, fmt.Sprintf("detector.iou must be between 0 and 1, got %g", d.IoU))
	}
	switch d.TieBreak {
	case "last", "highest":
	default:
		errs = append(errs, fmt.Sprintf("detector.tiebreak must be last or highest, got %q", d.TieBreak))
	}
	if d.MaxDetections <= 0 {
		errs = append(errs, "detector.maxdetections must be positive")
	}
	if d.Threads < 0 {
		errs = append(errs, "detector.threads must be non-negative")
	}
	return errs
}

func validateClassifierSettings(s *Settings) []string {
	c := &s.Classifier
	var errs []string
	switch c.Backend {
	case "tflite":
		if c.ModelPath == "" {
			errs = append(errs, "classifier.modelpath must not be empty")
		}
	case "remote":
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("classifier.remote.url must be an absolute URL, got %q", c.Remote.URL))
		}
	default:
		errs = append(errs, fmt.Sprintf("classifier.backend must be tflite or remote, got %q", c.Backend))
	}
	if c.InputSize <= 0 {
		errs = append(errs, fmt.Sprintf("classifier.inputsize must be positive, got %d", c.InputSize))
	}
	switch strings.ToLower(c.ChannelOrder) {
	case "bgr", "rgb":
	default:
		errs = append(errs, fmt.Sprintf("classifier.channelorder must be bgr or rgb, got %q", c.ChannelOrder))
	}
	if c.Threads < 0 {
		errs = append(errs, "classifier.threads must be non-negative")
	}
	return errs
}

func validateInferenceSettings(s *Settings) []string {
	if s.Inference.Timeout <= 0 {
		return []string{"inference.timeout must be positive"}
	}
	return nil
}

func validateAnnotationSettings(s *Settings) []string {
	a := &s.Annotation
	var errs []string
	if a.Thickness <= 0 {
		errs = append(errs, "annotation.thickness must be positive")
	}
	if a.FontScale <= 0 {
		errs = append(errs, "annotation.fontscale must be positive")
	}
	if _, _, _, err := ParseHexColor(a.Color); err != nil {
		errs = append(errs, fmt.Sprintf("annotation.color: %v", err))
	}
	if a.JPEGQuality < 1 || a.JPEGQuality > 100 {
		errs = append(errs, fmt.Sprintf("annotation.jpegquality must be between 1 and 100, got %d", a.JPEGQuality))
	}
	return errs
}

func validateWebServerSettings(s *Settings) []string {
	w := &s.WebServer
	var errs []string
	port, err := strconv.Atoi(w.Port)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver.port must be between 1 and 65535, got %q", w.Port))
	}
	if _, err := ParseSize(w.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Sprintf("webserver.maxuploadsize: %v", err))
	}
	if w.RateLimit.Enabled && (w.RateLimit.RequestsPerSecond <= 0 || w.RateLimit.Burst <= 0) {
		errs = append(errs, "webserver.ratelimit requires positive requestspersecond and burst")
	}
	return errs
}

func validateOutputSettings(s *Settings) []string {
	o := &s.Output
	switch {
	case o.SQLite.Enabled && o.MySQL.Enabled:
		return []string{"only one of output.sqlite and output.mysql can be enabled"}
	case o.SQLite.Enabled && o.SQLite.Path == "":
		return []string{"output.sqlite.path must not be empty"}
	case o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == ""):
		return []string{"output.mysql requires host and database"}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Broker == "" {
		errs = append(errs, "mqtt.broker must be set when mqtt is enabled")
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic must be set when mqtt is enabled")
	}
	return errs
}
