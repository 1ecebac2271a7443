package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
		{name: "home path", input: "~/notes", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}
}

func TestSanitizeRelPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "notes.md", want: "notes.md"},
		{name: "nested", input: "docs/api/spec.md", want: "docs/api/spec.md"},
		{name: "unsafe characters", input: `design: v2?.md`, want: "design- v2-.md"},
		{name: "quotes dropped", input: `"quoted".txt`, want: "quoted.txt"},
		{name: "backslash separators", input: `a\b.md`, want: "a/b.md"},
		{name: "collapses whitespace", input: "a  \n b.md", want: "a b.md"},
		{name: "duplicate slashes", input: "a//b.md", want: "a/b.md"},
		{name: "parent traversal", input: "../etc/passwd", wantErr: true},
		{name: "absolute", input: "/etc/passwd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeRelPath(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeRelPath_TruncatesOnRuneBoundary(t *testing.T) {
	got, err := SanitizeRelPath(strings.Repeat("日", 100) + ".md")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", 66), got)

	got, err = SanitizeRelPath("docs/" + strings.Repeat("a", 250))
	require.NoError(t, err)
	assert.Equal(t, "docs/"+strings.Repeat("a", 200), got)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "proj-1", SafeName("proj-1"))
	assert.Equal(t, "a_b", SafeName("a_b"))

	slashed := SafeName("a/b")
	assert.True(t, strings.HasPrefix(slashed, "a_b-"))
	assert.NotEqual(t, SafeName("a_b"), slashed)
	assert.NotEqual(t, SafeName("a:b"), slashed)
	assert.Equal(t, slashed, SafeName("a/b"))

	assert.NotContains(t, SafeName(".."), "/")
	assert.NotEqual(t, "..", SafeName(".."))
	assert.NotEmpty(t, SafeName(""))
}

func TestNormRelPath(t *testing.T) {
	assert.Equal(t, "a/b.md", NormRelPath(filepath.Join("a", "b.md")))
	assert.Equal(t, "a/b.md", NormRelPath("a/./b.md"))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "file.txt")
	data := []byte("hello")

	require.NoError(t, WriteFileAtomic(target, data, BytesHash(data)))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	err = WriteFileAtomic(target, []byte("changed"), BytesHash(data))
	assert.Error(t, err)

	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got, "failed integrity check must leave the target untouched")

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCopyFileAndHash(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))

	dst := filepath.Join(dir, "out", "dst.txt")
	n, err := CopyFile(src, dst)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	h1, err := FileHash(src)
	require.NoError(t, err)
	h2, err := FileHash(dst)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, BytesHash([]byte("content")), h1)
}

func TestProbeWritable(t *testing.T) {
	assert.NoError(t, ProbeWritable(t.TempDir()))
	assert.Error(t, ProbeWritable(filepath.Join(t.TempDir(), "missing")))
}
