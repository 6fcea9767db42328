package bodystream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReadAndRewind(t *testing.T) {
	ctx := context.Background()
	data := []byte("0123456789abcdef")
	m := NewMemory(data)
	assert.Equal(t, int64(len(data)), m.Length())

	buf := make([]byte, 5)
	n, err := m.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("01234"), buf)

	rest, err := ReadToEnd(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []byte("56789abcdef"), rest)

	n, err = m.Read(ctx, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, m.Rewind())
	all, err := ReadToEnd(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestMemory_ZeroLengthRead(t *testing.T) {
	m := NewMemory([]byte("abc"))
	n, err := m.Read(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemory_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory([]byte("abc"))
	_, err := m.Read(ctx, make([]byte, 3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadToCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory([]byte("hello world"))

	buf := make([]byte, 5)
	n, err := ReadToCount(ctx, m, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	big := make([]byte, 100)
	n, err = ReadToCount(ctx, m, big)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, " world", string(big[:n]))
}

func TestNewReader(t *testing.T) {
	var out bytes.Buffer
	_, err := io.Copy(&out, NewReader(context.Background(), NewMemory([]byte("copied"))))
	require.NoError(t, err)
	assert.Equal(t, "copied", out.String())
}

func TestFile_ReadRegion(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "content.bin")
	require.NoError(t, os.WriteFile(filePath, []byte("0123456789abcdef"), 0600))

	f, err := NewFile(FileConfig{FilePath: filePath, StartOffset: 4, Length: 6})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(6), f.Length())
	assert.Equal(t, filePath, f.Path())

	data, err := ReadToEnd(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(data))

	require.NoError(t, f.Rewind())
	buf := make([]byte, 2)
	n, err := f.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "45", string(buf[:n]))
}

func TestFile_WholeFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "content.bin")
	require.NoError(t, os.WriteFile(filePath, []byte("whole file"), 0600))

	f, err := NewFile(FileConfig{FilePath: filePath, BufferSize: 16})
	require.NoError(t, err)

	data, err := ReadToEnd(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "whole file", string(data))

	require.NoError(t, f.Close())
	_, err = f.Read(context.Background(), make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.Rewind(), ErrClosed)
}

func TestNewFile_Errors(t *testing.T) {
	_, err := NewFile(FileConfig{FilePath: "/non/existent/file.bin"})
	assert.Error(t, err)

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "small.bin")
	require.NoError(t, os.WriteFile(filePath, []byte("abc"), 0600))

	_, err = NewFile(FileConfig{FilePath: filePath, StartOffset: 2, Length: 5})
	assert.Error(t, err)
}

func TestReaderStream(t *testing.T) {
	ctx := context.Background()
	s := NewReaderStream(strings.NewReader("request body"), 7)
	assert.Equal(t, int64(7), s.Length())
	assert.NoError(t, s.Rewind())

	data, err := ReadToEnd(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "request", string(data))

	assert.ErrorIs(t, s.Rewind(), ErrNotRewindable)
	assert.NoError(t, s.Close())
}

func TestReaderStream_ShortSource(t *testing.T) {
	s := NewReaderStream(strings.NewReader("abc"), 10)
	_, err := ReadToEnd(context.Background(), s)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}
