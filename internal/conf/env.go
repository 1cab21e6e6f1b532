// conf/env.go
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding maps a config key to an environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "FISHNET_DEBUG", validateEnvBool},

		{"media.root", "FISHNET_MEDIA_ROOT", nil},
		{"media.url", "FISHNET_MEDIA_URL", nil},

		{"detector.modelpath", "FISHNET_DETECTOR_MODEL", nil},
		{"detector.confidence", "FISHNET_DETECTOR_CONFIDENCE", validateEnvUnitFloat},
		{"detector.iou", "FISHNET_DETECTOR_IOU", validateEnvUnitFloat},
		{"detector.threads", "FISHNET_DETECTOR_THREADS", validateEnvThreads},

		{"classifier.modelpath", "FISHNET_CLASSIFIER_MODEL", nil},
		{"classifier.labelpath", "FISHNET_CLASSIFIER_LABELS", nil},
		{"classifier.backend", "FISHNET_CLASSIFIER_BACKEND", validateEnvClassifierBackend},
		{"classifier.remote.url", "FISHNET_CLASSIFIER_REMOTE_URL", nil},
		{"classifier.threads", "FISHNET_CLASSIFIER_THREADS", validateEnvThreads},

		{"inference.timeout", "FISHNET_INFERENCE_TIMEOUT", validateEnvDuration},

		{"webserver.port", "FISHNET_PORT", validateEnvPort},

		{"output.mysql.enabled", "FISHNET_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.host", "FISHNET_MYSQL_HOST", nil},
		{"output.mysql.username", "FISHNET_MYSQL_USER", nil},
		{"output.mysql.password", "FISHNET_MYSQL_PASSWORD", nil},
		{"output.sqlite.path", "FISHNET_SQLITE_PATH", nil},

		{"mqtt.password", "FISHNET_MQTT_PASSWORD", nil},
		{"sentry.enabled", "FISHNET_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "FISHNET_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("value must be between 0.0 and 1.0, got %g", f)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvClassifierBackend(value string) error {
	switch value {
	case "tflite", "remote":
		return nil
	}
	return fmt.Errorf("must be one of: tflite, remote")
}
