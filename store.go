package zbc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BackingStore owns the single host file backing a device: the
// metadata region (header + realm array + zone array), memory-mapped
// for in-place updates, and the data region beyond it, accessed with
// positional and scatter-gather I/O. The metadata region is mapped
// with unix.Mmap against a plain file the caller already owns
// rather than a kernel character device, so no sysfs/LIO/loopback
// wiring is involved — that belongs to a kernel-facing host runtime,
// out of scope here.
type BackingStore struct {
	file     *os.File
	metaSize uint64
	mmap     []byte
}

// OpenOrCreateFile opens path for read-write, creating it if absent.
func OpenOrCreateFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
}

// EnsureSize truncates f up to at least size bytes, growing a sparse
// file as needed; it never shrinks an existing larger file.
// FormatDevice does not go through it and truncates the file to the
// new layout's exact size.
func EnsureSize(f *os.File, size uint64) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if uint64(fi.Size()) >= size {
		return nil
	}
	return f.Truncate(int64(size))
}

// OpenMeta mmaps the first metaSize bytes of f for read-write access.
func OpenMeta(f *os.File, metaSize uint64) (*BackingStore, error) {
	if err := EnsureSize(f, metaSize); err != nil {
		return nil, err
	}
	m, err := unix.Mmap(int(f.Fd()), 0, int(metaSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("zbc: mmap metadata region: %w", err)
	}
	return &BackingStore{file: f, metaSize: metaSize, mmap: m}, nil
}

// Bytes exposes the raw metadata region for marshaling/unmarshaling.
func (s *BackingStore) Bytes() []byte { return s.mmap }

// Sync flushes the metadata region to disk with an explicit
// sync-and-invalidate.
func (s *BackingStore) Sync() error {
	return unix.Msync(s.mmap, unix.MS_SYNC|unix.MS_INVALIDATE)
}

// Close unmaps the metadata region. It does not close the underlying
// file; the caller retains ownership of it.
func (s *BackingStore) Close() error {
	if s.mmap == nil {
		return nil
	}
	err := unix.Munmap(s.mmap)
	s.mmap = nil
	return err
}

// ReadAt reads len(buf) bytes from the data region at file offset off
// (already translated from LBA by the caller).
func (s *BackingStore) ReadAt(buf []byte, off int64) (int, error) {
	return unix.Pread(int(s.file.Fd()), buf, off)
}

// WriteAt writes buf to the data region at file offset off.
func (s *BackingStore) WriteAt(buf []byte, off int64) (int, error) {
	return unix.Pwrite(int(s.file.Fd()), buf, off)
}

// Readv/Writev perform scatter-gather I/O against the data region at a
// starting file offset, for multi-vector SCSI read/write commands.
func (s *BackingStore) Readv(iovecs [][]byte, off int64) (int, error) {
	return unix.Preadv(int(s.file.Fd()), iovecs, off)
}

func (s *BackingStore) Writev(iovecs [][]byte, off int64) (int, error) {
	return unix.Pwritev(int(s.file.Fd()), iovecs, off)
}

// FileSize returns the current size of the backing file.
func (s *BackingStore) FileSize() (uint64, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}
