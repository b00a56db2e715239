//go:build !linux && !darwin

package persistence

import "errors"

// ErrMmapUnsupported indicates that mmap isn't supported on this platform.
var ErrMmapUnsupported = errors.New("mmap unsupported")

// MappedFile is a read-only memory mapping of a snapshot file. Unsupported
// on this platform.
type MappedFile struct{}

func (m *MappedFile) Bytes() []byte { return nil }

func (m *MappedFile) Close() error { return nil }

// MmapReadOnly is unsupported on this platform.
func MmapReadOnly(path string) (*MappedFile, error) {
	return nil, ErrMmapUnsupported
}
