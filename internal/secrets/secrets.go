// Package secrets resolves credentials that are kept out of the config file,
// either as ${VAR} references or as mounted secret files.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/fishnet-go/internal/errors"
)

// maxFileSize caps secret file reads; credentials are small.
const maxFileSize = 64 * 1024

// ExpandString replaces ${VAR} and ${VAR:-default} references with values
// from the environment. A reference without a default to an unset variable
// is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from a mounted file such as /run/secrets/<name>.
// Trailing newlines are dropped and an empty file is an error. The returned
// errors never contain the file contents.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fileError(errors.NewStd("secret file path is empty"), path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	switch {
	case !info.Mode().IsRegular():
		return "", fileError(errors.NewStd("secret path is not a regular file"), clean)
	case info.Size() > maxFileSize:
		return "", fileError(errors.NewStd("secret file is too large"), clean)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(errors.NewStd("secret file is empty"), clean)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
