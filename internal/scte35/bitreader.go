// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scte35

import "errors"

// ErrTruncated is returned when a read runs past the end of the buffer.
var ErrTruncated = errors.New("truncated section")

// BitReader reads big-endian bit fields from a byte slice.
type BitReader struct {
	data []byte
	pos  int // bit offset
}

// NewBitReader returns a reader positioned at the first bit of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int {
	return len(r.data)*8 - r.pos
}

// ReadBits reads n bits (n <= 64) as an unsigned integer.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, errors.New("invalid bit count")
	}
	if n > r.Remaining() {
		return 0, ErrTruncated
	}
	var v uint64
	for n > 0 {
		byteIdx, bitOff := r.pos/8, r.pos%8
		avail := 8 - bitOff
		take := avail
		if take > n {
			take = n
		}
		shift := avail - take
		chunk := (uint64(r.data[byteIdx]) >> shift) & (1<<take - 1)
		v = v<<take | chunk
		r.pos += take
		n -= take
	}
	return v, nil
}

// ReadFlag reads a single bit.
func (r *BitReader) ReadFlag() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// Skip advances n bits.
func (r *BitReader) Skip(n int) error {
	if n < 0 || n > r.Remaining() {
		return ErrTruncated
	}
	r.pos += n
	return nil
}

// ReadBytes reads n whole bytes. The reader must be byte aligned.
func (r *BitReader) ReadBytes(n int) ([]byte, error) {
	if r.pos%8 != 0 {
		return nil, errors.New("unaligned byte read")
	}
	if n < 0 || n*8 > r.Remaining() {
		return nil, ErrTruncated
	}
	start := r.pos / 8
	r.pos += n * 8
	return r.data[start : start+n], nil
}

// bits is a small helper for sequential reads that records the first error.
type bits struct {
	r   *BitReader
	err error
}

func (b *bits) u(n int) uint64 {
	if b.err != nil {
		return 0
	}
	v, err := b.r.ReadBits(n)
	b.err = err
	return v
}

func (b *bits) flag() bool {
	return b.u(1) == 1
}

func (b *bits) skip(n int) {
	if b.err != nil {
		return
	}
	b.err = b.r.Skip(n)
}

func (b *bits) bytes(n int) []byte {
	if b.err != nil {
		return nil
	}
	v, err := b.r.ReadBytes(n)
	b.err = err
	return v
}
