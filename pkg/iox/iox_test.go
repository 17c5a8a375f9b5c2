package iox

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteStreamToFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "a.bin")
	n, err := WriteStreamToFile(fn, bytes.NewReader([]byte("hello")), 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}

func TestWriteStreamToFileLimit(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "a.bin")
	_, err := WriteStreamToFile(fn, bytes.NewReader([]byte("hello")), 4)
	require.True(t, errors.Is(err, ErrTooLarge))
	_, err = os.Stat(fn)
	require.True(t, os.IsNotExist(err))

	n, err := WriteStreamToFile(fn, bytes.NewReader([]byte("hell")), 4)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}
