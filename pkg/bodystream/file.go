package bodystream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
)

// FileConfig holds configuration for a file backed stream
type FileConfig struct {
	FilePath    string // Path to the file
	StartOffset int64  // Offset of the first byte of the stream
	Length      int64  // Number of bytes to expose (0 = to end of file)
	BufferSize  int    // Read buffer size (0 = bufio default)
}

// File provides sequential access to a region of a file. It owns the file
// handle and releases it on Close.
type File struct {
	file   *os.File
	reader *bufio.Reader
	config FileConfig
	length int64
	offset int64 // Bytes delivered since the start of the region
}

// NewFile opens the file described by config
func NewFile(config FileConfig) (*File, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	length := config.Length
	if length == 0 {
		length = stat.Size() - config.StartOffset
	}
	if length < 0 || config.StartOffset+length > stat.Size() {
		file.Close()
		return nil, errors.New("file region exceeds file size")
	}

	f := &File{
		file:   file,
		config: config,
		length: length,
	}
	if err := f.Rewind(); err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// Length returns the size of the region
func (f *File) Length() int64 {
	return f.length
}

func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.reader == nil {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	remaining := f.length - f.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := f.reader.Read(p)
	f.offset += int64(n)
	if err == io.EOF {
		if n > 0 {
			return n, nil
		}
		// The file shrank underneath us
		return 0, io.ErrUnexpectedEOF
	}
	return n, err
}

// Rewind seeks back to the start offset
func (f *File) Rewind() error {
	if f.file == nil {
		return ErrClosed
	}
	if _, err := f.file.Seek(f.config.StartOffset, io.SeekStart); err != nil {
		return err
	}

	if f.config.BufferSize > 0 {
		f.reader = bufio.NewReaderSize(f.file, f.config.BufferSize)
	} else {
		f.reader = bufio.NewReader(f.file) // Recreate reader to clear buffer
	}
	f.offset = 0
	return nil
}

// Path returns the file path
func (f *File) Path() string {
	return f.config.FilePath
}

// Close closes the file
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.reader = nil
	return err
}
