package archive

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/carlmjohnson/exitcode"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI(t *testing.T) {
	src := t.TempDir()
	makeTree(t, src, map[string]string{"a/b/file.txt": "hello"})
	prefix := filepath.Join(t.TempDir(), "out")

	err := CLI([]string{"-silent", src, prefix})
	require.NoError(t, err)
	assert.Equal(t, 0, exitcode.Get(err))

	got := openArchive(t, prefix+".zip")
	assert.Equal(t, []string{"a/", "a/b/", "a/b/file.txt"}, names(got))
	assert.Equal(t, "hello", got["a/b/file.txt"].body)
}

func TestCLIAppendsSuffix(t *testing.T) {
	src := t.TempDir()
	prefix := filepath.Join(t.TempDir(), "already.zip")

	require.NoError(t, CLI([]string{"-silent", src, prefix}))
	assert.FileExists(t, prefix+".zip")
	assert.NoFileExists(t, prefix)
}

func TestCLIUsage(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	for name, args := range map[string][]string{
		"no args":      {},
		"one arg":      {src},
		"three args":   {src, filepath.Join(out, "x"), "extra"},
		"bad level":    {"-level", "12", src, filepath.Join(out, "x")},
		"unknown flag": {"-bogus", src, filepath.Join(out, "x")},
		"help":         {"-h"},
	} {
		t.Run(name, func(t *testing.T) {
			err := CLI(args)
			require.Error(t, err)
			assert.Equal(t, 2, exitcode.Get(err))
			assert.NoFileExists(t, filepath.Join(out, "x.zip"))
		})
	}
}

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = old })
	return &buf
}

func TestCLIUsageReason(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "x")

	for name, tc := range map[string]struct {
		args []string
		want string
	}{
		"one arg":   {[]string{src}, "Error: need source folder and output path prefix, got 1 arguments"},
		"bad level": {[]string{"-level", "12", src, out}, "Error: bad -level 12: compression level out of range"},
	} {
		t.Run(name, func(t *testing.T) {
			buf := captureStderr(t)
			err := CLI(tc.args)
			require.Error(t, err)
			assert.Contains(t, buf.String(), "Usage:")
			assert.Contains(t, buf.String(), tc.want)
		})
	}

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("MAKEZIP_LEVEL", "lots")
		buf := captureStderr(t)
		err := CLI([]string{src, out})
		require.Error(t, err)
		assert.Equal(t, 2, exitcode.Get(err))
		assert.Contains(t, buf.String(), "Error: ")
	})

	t.Run("help", func(t *testing.T) {
		buf := captureStderr(t)
		require.Error(t, CLI([]string{"-h"}))
		assert.NotContains(t, buf.String(), "Error: ")
	})
}

func TestCLIMissingSource(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out")

	buf := captureStderr(t)
	err := CLI([]string{"-silent", filepath.Join(t.TempDir(), "missing"), prefix})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Error: source folder: ")
	assert.Equal(t, 1, exitcode.Get(err))
	assert.NoFileExists(t, prefix+".zip")
}

func TestCLILevel(t *testing.T) {
	src := t.TempDir()
	makeTree(t, src, map[string]string{"a.txt": "abcabcabcabc"})
	out := t.TempDir()

	require.NoError(t, CLI([]string{"-silent", "-level", "0", src, filepath.Join(out, "flag")}))
	assert.Equal(t, zip.Store, openArchive(t, filepath.Join(out, "flag.zip"))["a.txt"].meth)

	t.Setenv("MAKEZIP_LEVEL", "0")
	require.NoError(t, CLI([]string{"-silent", src, filepath.Join(out, "env")}))
	assert.Equal(t, zip.Store, openArchive(t, filepath.Join(out, "env.zip"))["a.txt"].meth)

	// The command line wins over the environment.
	require.NoError(t, CLI([]string{"-silent", "-level", "9", src, filepath.Join(out, "both")}))
	assert.Equal(t, zip.Deflate, openArchive(t, filepath.Join(out, "both.zip"))["a.txt"].meth)
}
