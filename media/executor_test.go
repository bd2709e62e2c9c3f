package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	e := NewExecutor()

	out, err := e.Execute(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestExecutor_ExecuteFailureIncludesStderr(t *testing.T) {
	e := NewExecutor()

	_, err := e.Execute(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "command 'sh' failed")
}

func TestExecutor_ExecuteInDir(t *testing.T) {
	e := NewExecutor()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))

	out, err := e.ExecuteInDir(context.Background(), dir, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "marker.txt")
}

func TestExecutor_ContextCancellation(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutor_LookPath(t *testing.T) {
	e := NewExecutor()

	path, err := e.LookPath("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = e.LookPath("clipforge-no-such-binary")
	assert.Error(t, err)
}
