package bodystream

import (
	"context"
	"io"
)

// Memory is a BodyStream over a byte slice. The slice is borrowed and must
// not be modified while the stream is in use.
type Memory struct {
	data   []byte
	offset int
}

// NewMemory returns a stream positioned at the start of data.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

// Length returns len(data).
func (m *Memory) Length() int64 {
	return int64(len(m.data))
}

func (m *Memory) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.offset >= len(m.data) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.offset:])
	m.offset += n
	return n, nil
}

// Rewind moves back to the first byte. It never fails.
func (m *Memory) Rewind() error {
	m.offset = 0
	return nil
}

// Bytes returns the underlying slice.
func (m *Memory) Bytes() []byte {
	return m.data
}
