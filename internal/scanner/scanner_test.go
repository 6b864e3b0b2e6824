package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.yaml":              "procedures: []",
		"src/lib.rs":          "fn f() {}",
		"src/nested/b.yml":    "procedures: []",
		"README.md":           "# notes",
		".hidden/c.yaml":      "procedures: []",
		"target/debug/d.yaml": "procedures: []",
		".git/config":         "[core]",
		"vendor/x/lib.rs":     "fn g() {}",
	})

	files, err := New(DefaultOptions()).Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "src/lib.rs", "src/nested/b.yml"}, paths(files))

	assert.Equal(t, KindProgram, files[0].Kind)
	assert.Equal(t, KindRust, files[1].Kind)
	assert.Equal(t, filepath.Join(root, "a.yaml"), files[0].FullPath)
	assert.Equal(t, int64(len("procedures: []")), files[0].Size)
}

func TestScanKinds(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.yaml":     "procedures: []",
		"src/lib.rs": "fn f() {}",
	})

	files, err := Programs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml"}, paths(files))
}

func TestScanIgnoreFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		".grfignore":          "# generated\n*.gen.yaml\nscratch/\n!keep.gen.yaml\n/top.yaml\n",
		"top.yaml":            "",
		"sub/top.yaml":        "",
		"x.gen.yaml":          "",
		"keep.gen.yaml":       "",
		"scratch/s.yaml":      "",
		"deep/scratch/t.yaml": "",
		"deep/.grfignore":     "local.yaml\n",
		"deep/local.yaml":     "",
		"local.yaml":          "",
	})

	files, err := Programs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.gen.yaml", "local.yaml", "sub/top.yaml"}, paths(files))
}

func TestScanMissingRoot(t *testing.T) {
	_, err := New(DefaultOptions()).Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIgnorePatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"*.yaml", "a.yaml", false, true},
		{"*.yaml", "deep/a.yaml", false, true},
		{"*.yaml", "a.yml", false, false},
		{"build/", "build", true, true},
		{"build/", "build/x.yaml", false, true},
		{"build/", "build", false, false},
		{"/a.yaml", "a.yaml", false, true},
		{"/a.yaml", "sub/a.yaml", false, false},
		{"sub/a.yaml", "sub/a.yaml", false, true},
		{"sub/a.yaml", "other/sub/a.yaml", false, false},
		{"!a.yaml", "a.yaml", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIgnorePattern(tt.pattern).Match(tt.path, tt.isDir))
		})
	}
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindProgram, DetectKind(".YAML"))
	assert.Equal(t, KindRust, DetectKind(".rs"))
	assert.Equal(t, Kind(""), DetectKind(".go"))
}
