package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// UpdateGoldenEnv is the environment variable which, when set to a non empty value,
// makes the golden helpers rewrite the golden files with the current test output.
const UpdateGoldenEnv = "TESTS_UPDATE_GOLDEN"

type goldenOptions struct {
	path string
}

// GoldenOption customizes the golden helpers.
type GoldenOption func(*goldenOptions)

// WithGoldenPath overrides the default golden file path.
func WithGoldenPath(path string) GoldenOption {
	return func(o *goldenOptions) {
		o.path = path
	}
}

// GoldenPath returns the default golden file path of the running test:
// testdata/golden/<test name>, with one directory level per subtest.
func GoldenPath(t *testing.T) string {
	t.Helper()
	return filepath.Join("testdata", "golden", filepath.FromSlash(t.Name()))
}

// UpdateEnabled reports whether golden files should be rewritten.
func UpdateEnabled() bool {
	return strings.TrimSpace(os.Getenv(UpdateGoldenEnv)) != ""
}

// LoadWithUpdateFromGolden returns the content of the golden file of the running test.
// When updates are enabled, the golden file is first rewritten with data.
func LoadWithUpdateFromGolden(t *testing.T, data string, opts ...GoldenOption) string {
	t.Helper()

	o := goldenOptions{path: GoldenPath(t)}
	for _, f := range opts {
		f(&o)
	}

	if UpdateEnabled() {
		t.Logf("Updating golden file %s", o.path)
		require.NoError(t, os.MkdirAll(filepath.Dir(o.path), 0750), "Cannot create golden directory")
		require.NoError(t, os.WriteFile(o.path, []byte(data), 0600), "Cannot write golden file")
	}

	want, err := os.ReadFile(o.path)
	require.NoError(t, err, "Cannot load golden file %s", o.path)
	return string(want)
}

// LoadWithUpdateFromGoldenYAML is LoadWithUpdateFromGolden for values serialized as YAML.
// The golden content is decoded back into a value of the same type as got.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E, opts ...GoldenOption) E {
	t.Helper()

	data, err := yaml.Marshal(got)
	require.NoError(t, err, "Cannot serialize golden value to YAML")

	raw := LoadWithUpdateFromGolden(t, string(data), opts...)

	var want E
	require.NoError(t, yaml.Unmarshal([]byte(raw), &want), "Cannot decode golden file")
	return want
}
