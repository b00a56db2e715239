package persistence

import (
	"bytes"
	"io"
)

// ReadMapped parses a snapshot from a read-only memory mapping of path.
// Falls back to a plain file read where mmap is unavailable.
func ReadMapped(path string) (*Snapshot, error) {
	m, err := MmapReadOnly(path)
	if err != nil {
		var s *Snapshot
		lerr := LoadFromFile(path, func(r io.Reader) error {
			var rerr error
			s, rerr = Read(r)
			return rerr
		})
		if lerr != nil {
			return nil, lerr
		}
		return s, nil
	}
	defer m.Close()
	return Read(bytes.NewReader(m.Bytes()))
}
