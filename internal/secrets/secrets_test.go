package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("FISHNET_TEST_TOKEN", "s3cret")
	t.Setenv("FISHNET_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"literal", "plain", "plain", false},
		{"empty", "", "", false},
		{"variable", "${FISHNET_TEST_TOKEN}", "s3cret", false},
		{"embedded", "user:${FISHNET_TEST_TOKEN}@db", "user:s3cret@db", false},
		{"default used", "${FISHNET_TEST_UNSET:-fallback}", "fallback", false},
		{"empty default", "${FISHNET_TEST_EMPTY:-}", "", false},
		{"missing", "${FISHNET_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "FISHNET_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "mysql_password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = ReadFile(dir)
	assert.Error(t, err)

	_, err = ReadFile("")
	assert.Error(t, err)
}

func TestReadFileRejectsLargeFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big")
	require.NoError(t, os.WriteFile(path, make([]byte, maxFileSize+1), 0o600))

	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("FISHNET_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	got, err := Resolve(path, "${FISHNET_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${FISHNET_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
