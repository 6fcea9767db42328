package crc64

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"hash/crc64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestChecksum_MatchesStdlibTable(t *testing.T) {
	data := []byte("123456789")
	expected := crc64.Checksum(data, crc64.MakeTable(Polynomial))
	assert.Equal(t, expected, Checksum(data))
	assert.Equal(t, uint64(0), Checksum(nil))
}

func TestHash_AppendIsIncremental(t *testing.T) {
	data := randomBytes(t, 4096)

	h := New()
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		h.Append(data[i:end])
	}

	assert.Equal(t, Checksum(data), h.Sum64())
	assert.Equal(t, int64(len(data)), h.Len())
}

func TestCombine(t *testing.T) {
	testCases := []struct {
		name string
		lenA int
		lenB int
	}{
		{"both empty", 0, 0},
		{"empty prefix", 0, 33},
		{"empty suffix", 33, 0},
		{"single bytes", 1, 1},
		{"small", 17, 100},
		{"segment sized", 1024, 1024},
		{"uneven", 4096, 513},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := randomBytes(t, tc.lenA)
			b := randomBytes(t, tc.lenB)
			whole := append(append([]byte{}, a...), b...)

			got := Combine(Checksum(a), Checksum(b), int64(len(b)))
			assert.Equal(t, Checksum(whole), got)
		})
	}
}

func TestHash_Concatenate(t *testing.T) {
	data := randomBytes(t, 2560)

	stream := New()
	segment := New()
	for offset := 0; offset < len(data); offset += 1024 {
		end := offset + 1024
		if end > len(data) {
			end = len(data)
		}
		segment.Append(data[offset:end])
		stream.Concatenate(segment)
		segment.Reset()
	}

	assert.Equal(t, Checksum(data), stream.Sum64())
	assert.Equal(t, int64(len(data)), stream.Len())
	assert.Equal(t, int64(0), segment.Len())
}

func TestHash_ConcatenateLeavesOtherUntouched(t *testing.T) {
	h := New()
	h.Append([]byte("hello "))
	other := New()
	other.Append([]byte("world"))
	before := other.Sum64()

	h.Concatenate(other)

	assert.Equal(t, before, other.Sum64())
	assert.Equal(t, Checksum([]byte("hello world")), h.Sum64())
}

func TestHash_Final(t *testing.T) {
	h := New()
	h.Append([]byte("structured message"))

	final := h.Final()
	require.Len(t, final, Size)
	assert.Equal(t, h.Sum64(), binary.LittleEndian.Uint64(final))

	// Final does not reset the state
	assert.True(t, bytes.Equal(final, h.Final()))
	assert.Equal(t, final, h.Sum(nil))
}

func TestHash_HashInterface(t *testing.T) {
	h := New()
	n, err := h.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, Size, h.Size())
	assert.Equal(t, 1, h.BlockSize())

	prefix := []byte{0xAA}
	sum := h.Sum(prefix)
	assert.Len(t, sum, 1+Size)
	assert.Equal(t, byte(0xAA), sum[0])

	h.Reset()
	assert.Equal(t, uint64(0), h.Sum64())
	assert.Equal(t, make([]byte, Size), h.Final())
}
