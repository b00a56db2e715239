//go:build linux || darwin

package persistence

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile is a read-only memory mapping of a snapshot file.
//
// The Bytes() slice aliases the mapped region; any views into it become
// invalid after Close.
type MappedFile struct {
	data []byte
}

func (m *MappedFile) Bytes() []byte {
	if m == nil {
		return nil
	}
	return m.data
}

func (m *MappedFile) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return unix.Munmap(data)
}

// MmapReadOnly opens path and memory-maps it read-only. Large snapshots
// avoid a read copy this way; the mapping must outlive every view into it.
func MmapReadOnly(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() <= 0 {
		return nil, fmt.Errorf("mmap: empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MappedFile{data: data}, nil
}
