package zbc

import "encoding/binary"

// Big-endian field helpers for the on-disk metadata layout and for
// marshaling SCSI payload bytes. The backing file and the wire format
// are both big-endian regardless of host endianness, so everything
// here goes through binary.BigEndian explicitly rather than relying
// on a kernel mailbox's native byte order.

func getU16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func putU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

func getU32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

func getU64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
func putU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// getU48 reads a 48-bit big-endian value from an 8-byte buffer, where
// the value occupies bytes [2:8] and bytes [0:2] must be zero (the
// original dhsmr handler's ZONE ACTIVATE(16) CDB encodes its start LBA
// this way). Any nonzero high bits are folded in rather than masked
// off, so a future widening of the field degrades gracefully instead
// of silently truncating.
func getU48(b8 [8]byte) uint64 {
	return binary.BigEndian.Uint64(b8[:])
}

// putU48 writes v into an 8-byte buffer using the same [2:8] convention,
// zeroing the top two bytes. Panics if v doesn't fit in 48 bits.
func putU48(b8 *[8]byte, v uint64) {
	if v>>48 != 0 {
		panic("zbc: putU48: value does not fit in 48 bits")
	}
	binary.BigEndian.PutUint64(b8[:], v)
}
