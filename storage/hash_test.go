package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum, err := FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sum)
}

func TestFileHash_Missing(t *testing.T) {
	sum, err := FileHash(filepath.Join(t.TempDir(), "nope.mp4"))
	require.Error(t, err)
	assert.Empty(t, sum)
}

func TestFileHash_ContentAddressed(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	c := filepath.Join(dir, "c.mp4")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("other bytes"), 0o644))

	sumA, err := FileHash(a)
	require.NoError(t, err)
	sumB, err := FileHash(b)
	require.NoError(t, err)
	sumC, err := FileHash(c)
	require.NoError(t, err)

	// 同内容不同文件名哈希一致
	assert.Equal(t, sumA, sumB)
	assert.NotEqual(t, sumA, sumC)
	assert.Len(t, sumA, 64)
}
