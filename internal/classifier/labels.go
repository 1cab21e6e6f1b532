package classifier

import (
	"bufio"
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/tphakala/fishnet-go/internal/errors"
)

//go:embed labels.txt
var defaultLabelData []byte

// DefaultLabels returns the built-in species list in model output order.
func DefaultLabels() []string {
	labels, _ := parseLabels(defaultLabelData)
	return labels
}

// LoadLabels reads one label per line from path. An empty path returns the
// built-in list.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return DefaultLabels(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}
	labels, err := parseLabels(data)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	return labels, nil
}

func parseLabels(data []byte) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.NewStd("label file is empty")
	}
	return labels, nil
}
