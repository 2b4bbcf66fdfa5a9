package proclog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradex-ops/tradexd/pkg/errors"
)

func TestOpenAndAppend(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "app.out.log")
	stderrPath := filepath.Join(dir, "app.err.log")

	files, err := Open(stdoutPath, stderrPath)
	require.NoError(t, err)
	_, err = files.Stdout.WriteString("first run\n")
	require.NoError(t, err)
	files.Close()

	// Reopening must append, not truncate.
	files, err = Open(stdoutPath, stderrPath)
	require.NoError(t, err)
	_, err = files.Stdout.WriteString("second run\n")
	require.NoError(t, err)
	files.Close()

	content, err := os.ReadFile(stdoutPath)
	require.NoError(t, err)
	assert.Equal(t, "first run\nsecond run\n", string(content))
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	files, err := Open(filepath.Join(dir, "a.out.log"), filepath.Join(dir, "a.err.log"))
	require.NoError(t, err)
	files.Close()

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var builder strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&builder, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(builder.String()), 0o644))

	lines, err := TailFile(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 98", "line 99", "line 100"}, lines)
}

func TestTailFile_FewerLinesThanRequested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("only line\n"), 0o644))

	lines, err := TailFile(path, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"only line"}, lines)
}

func TestTailFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	lines, err := TailFile(path, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTailFile_Missing(t *testing.T) {
	_, err := TailFile(filepath.Join(t.TempDir(), "missing.log"), 10)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestTailFile_ZeroLines(t *testing.T) {
	lines, err := TailFile("/does/not/matter", 0)
	require.NoError(t, err)
	assert.Nil(t, lines)
}

func TestTailFile_LargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	var builder strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&builder, "entry %05d with some padding to cross chunk boundaries\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(builder.String()), 0o644))

	lines, err := TailFile(path, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "entry 04999")
}
