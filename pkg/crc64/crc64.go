// Package crc64 implements the CRC64 variant used by Azure Storage for
// transactional and structured message checksums.
//
// The checksum uses the reflected polynomial 0x9A6C9329AC4BC9B5 with an
// all-ones initial value and final xor, which is exactly what hash/crc64
// computes for a table built from that polynomial. On the wire a checksum is
// the 8-byte little-endian encoding of the 64-bit value.
//
// Besides incremental updates, Hash supports Concatenate: the state of two
// hashes computed over A and B can be merged into the hash of A ++ B without
// re-reading either input. Structured messages rely on this to build the
// whole-stream checksum out of per-segment checksums.
package crc64

import (
	"encoding/binary"
	"hash"
	"hash/crc64"
)

// Polynomial is the reflected Azure Storage CRC64 polynomial.
const Polynomial uint64 = 0x9A6C9329AC4BC9B5

// Size is the size of an encoded checksum in bytes.
const Size = 8

var table = crc64.MakeTable(Polynomial)

// Checksum returns the CRC64 of data.
func Checksum(data []byte) uint64 {
	return crc64.Update(0, table, data)
}

// Combine returns the CRC64 of A ++ B given crc1 = Checksum(A),
// crc2 = Checksum(B) and len2 = len(B).
func Combine(crc1, crc2 uint64, len2 int64) uint64 {
	if len2 <= 0 {
		return crc1
	}

	var even, odd [64]uint64

	// odd is the operator for one zero bit
	odd[0] = Polynomial
	row := uint64(1)
	for n := 1; n < 64; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2MatrixSquare(&even, &odd) // two zero bits
	gf2MatrixSquare(&odd, &even) // four zero bits

	// Apply len2 zero bytes to crc1. The first square below yields the
	// operator for one zero byte.
	for {
		gf2MatrixSquare(&even, &odd)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		gf2MatrixSquare(&odd, &even)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}

func gf2MatrixTimes(mat *[64]uint64, vec uint64) uint64 {
	var sum uint64
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat *[64]uint64) {
	for n := 0; n < 64; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// Hash is an incremental CRC64 accumulator. The zero value is ready to use
// and represents the checksum of empty input.
type Hash struct {
	crc    uint64
	length int64
}

var _ hash.Hash64 = (*Hash)(nil)

// New returns an empty Hash.
func New() *Hash {
	return &Hash{}
}

// Append feeds data into the checksum.
func (h *Hash) Append(data []byte) {
	h.crc = crc64.Update(h.crc, table, data)
	h.length += int64(len(data))
}

// Concatenate merges other into h so that h holds the checksum of the bytes
// appended to h followed by the bytes appended to other. other is not
// modified.
func (h *Hash) Concatenate(other *Hash) {
	h.crc = Combine(h.crc, other.crc, other.length)
	h.length += other.length
}

// Final returns the 8-byte little-endian encoding of the current checksum.
// It does not change the state of the hash.
func (h *Hash) Final() []byte {
	out := make([]byte, Size)
	binary.LittleEndian.PutUint64(out, h.crc)
	return out
}

// Len returns the number of bytes the checksum covers.
func (h *Hash) Len() int64 {
	return h.length
}

// Write implements io.Writer. It never returns an error.
func (h *Hash) Write(p []byte) (int, error) {
	h.Append(p)
	return len(p), nil
}

// Sum appends the little-endian checksum to b.
func (h *Hash) Sum(b []byte) []byte {
	return binary.LittleEndian.AppendUint64(b, h.crc)
}

// Sum64 returns the current checksum value.
func (h *Hash) Sum64() uint64 {
	return h.crc
}

// Reset returns the hash to its empty state.
func (h *Hash) Reset() {
	h.crc = 0
	h.length = 0
}

// Size returns the number of bytes Sum appends.
func (h *Hash) Size() int {
	return Size
}

// BlockSize returns the hash's underlying block size.
func (h *Hash) BlockSize() int {
	return 1
}
