// config.go: settings struct for fishnet-go and functions to load it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// MediaSettings controls where uploaded and annotated images live.
type MediaSettings struct {
	Root string // filesystem root for user media
	URL  string // public URL prefix, e.g. "/media/"
}

// DetectorSettings configures the fish detector.
type DetectorSettings struct {
	Backend         string  // "tflite" or "onnx"
	ModelPath       string  // path to the detection model
	InputSize       int     // square model input side, 640 for YOLOv5
	Confidence      float64 // minimum object and class score
	IoU             float64 // IoU threshold for non-maximum suppression
	TieBreak        string  // "last" or "highest"
	NormalizedBoxes bool    // model emits coordinates in [0,1]
	MaxDetections   int     // survivors kept after suppression
	Threads         int     // 0 picks a value from the CPU
	UseXNNPACK      bool    // enable the XNNPACK delegate
}

// RemoteSettings points the classifier at an external inference server.
type RemoteSettings struct {
	URL     string
	Timeout time.Duration
}

// ClassifierSettings configures the species classifier.
type ClassifierSettings struct {
	Backend      string // "tflite" or "remote"
	ModelPath    string
	LabelPath    string // optional, one label per line
	InputSize    int
	ChannelOrder string // "bgr" or "rgb"
	ApplySoftmax bool
	Threads      int
	UseXNNPACK   bool
	Remote       RemoteSettings
}

// InferenceSettings applies to both models.
type InferenceSettings struct {
	Timeout time.Duration // per call deadline
	WarmUp  bool          // run one zero-image inference at startup
}

// AnnotationSettings controls the drawing on detection copies.
type AnnotationSettings struct {
	Thickness   int
	FontScale   int
	Color       string // hex, "#00ff00"
	JPEGQuality int
}

// RateLimitSettings limits recognition requests per client address.
type RateLimitSettings struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// WebServerSettings configures the HTTP server.
type WebServerSettings struct {
	Host            string
	Port            string
	MaxUploadSize   string // e.g. "20M"
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimitSettings
}

// SQLiteSettings for the embedded database.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings for an external database.
type MySQLSettings struct {
	Enabled      bool
	Username     string
	Password     string // may reference ${VAR}
	PasswordFile string // read instead of Password when set
	Database     string
	Host         string
	Port         string
}

// OutputSettings selects the database backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// CacheSettings for datastore lookups.
type CacheSettings struct {
	FishTTL time.Duration
}

// MQTTSettings for recognition events.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	Username string
	Password string
	Retain   bool
	ClientID string

	PasswordFile string
}

// SentrySettings for opt-in error telemetry.
type SentrySettings struct {
	Enabled    bool
	DSN        string
	DSNFile    string
	SampleRate float64
}

// MetricsSettings for the prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Path    string
}

// Settings contains all configuration options for fishnet-go.
type Settings struct {
	Debug   bool
	Version string `yaml:"-" mapstructure:"-"`

	Main struct {
		Name string
		Log  logger.LoggingConfig
	}

	Media      MediaSettings
	Detector   DetectorSettings
	Classifier ClassifierSettings
	Inference  InferenceSettings
	Annotation AnnotationSettings
	WebServer  WebServerSettings
	Output     OutputSettings
	Cache      CacheSettings
	MQTT       MQTTSettings
	Sentry     SentrySettings
	Metrics    MetricsSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces credential settings with their expanded values.
// Disabled sections are left alone so an unset variable only matters when
// the feature is in use.
func resolveSecrets(settings *Settings) error {
	type secretField struct {
		enabled bool
		file    string
		value   *string
	}
	fields := []secretField{
		{settings.Output.MySQL.Enabled, settings.Output.MySQL.PasswordFile, &settings.Output.MySQL.Password},
		{settings.MQTT.Enabled, settings.MQTT.PasswordFile, &settings.MQTT.Password},
		{settings.Sentry.Enabled, settings.Sentry.DSNFile, &settings.Sentry.DSN},
	}
	for _, f := range fields {
		if !f.enabled {
			continue
		}
		resolved, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return err
		}
		*f.value = resolved
	}
	return nil
}

func initViper() error {
	setDefaultConfig()

	// an explicit --config path wins over the search paths
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := bindEnvVars(); err != nil {
		// invalid environment values are reported but do not stop startup,
		// ValidateSettings rejects the ones that matter
		fmt.Fprintln(os.Stderr, err)
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig()
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}

	return nil
}

// createDefaultConfig writes the embedded config to the first search path.
// When the path is not writable the embedded config is read from memory.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err == nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err == nil {
			fmt.Println("Created default config file at:", configPath)
			viper.SetConfigFile(configPath)
			return viper.ReadInConfig()
		}
	}

	viper.SetConfigType("yaml")
	return viper.ReadConfig(strings.NewReader(defaultConfig))
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("failed to read embedded config file: %v", err))
	}
	return string(data)
}

// GetSettings returns the settings loaded by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings, loading them on first use.
func Setting() *Settings {
	if s := GetSettings(); s != nil {
		return s
	}
	s, err := Load()
	if err != nil {
		panic(fmt.Sprintf("error loading settings: %v", err))
	}
	return s
}
