package queue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.bl")
	tasks := []string{
		"echo one",
		`ls -la --env="VAR VAR" -h`,
		"",
		"sleep 2",
	}

	require.NoError(t, Write(path, tasks))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, tasks, got)
}

func TestWriteReadDropsTrailingCarriageReturn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.bl")
	require.NoError(t, Write(path, []string{"echo a\r", "echo\rb"}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo a", "echo\rb"}, got)
}

func TestWriteEmptyLeavesZeroLengthFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.bl")
	require.NoError(t, os.WriteFile(path, []byte("echo stale\n"), 0o644))

	require.NoError(t, Write(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadToleratesMissingFinalNewlineAndCRLF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.bl")
	require.NoError(t, os.WriteFile(path, []byte("echo a\r\necho b"), 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo a", "echo b"}, got)
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Read(filepath.Join(t.TempDir(), "nope.bl"))
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "expected IOError, got %v", err)
	assert.Equal(t, "read", ioErr.Op)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.bl")
	require.NoError(t, os.WriteFile(path, []byte{'o', 'k', '\n', 0xff, 0xfe}, 0o644))

	_, err := Read(path)
	var ioErr *IOError
	assert.True(t, errors.As(err, &ioErr), "expected IOError, got %v", err)
}

func TestAppendIsAdditive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qrun_history.log")

	require.NoError(t, Append(path, "echo first"))
	require.NoError(t, Append(path, "echo second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "echo first\necho second\n", string(data))
}

func TestAppendFailsWhenDirectoryMissing(t *testing.T) {
	t.Parallel()

	err := Append(filepath.Join(t.TempDir(), "missing", "history.log"), "x")
	var ioErr *IOError
	assert.True(t, errors.As(err, &ioErr))
}
