package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/popgene/popstore/codec"
)

// Option configures snapshot writing.
type Option func(*writeOptions)

type writeOptions struct {
	compression CompressionType
	codec       codec.Codec
}

// WithCompression selects the compression of the buffer sections.
func WithCompression(ct CompressionType) Option {
	return func(o *writeOptions) { o.compression = ct }
}

// WithCodec selects the codec for the schema section.
func WithCodec(c codec.Codec) Option {
	return func(o *writeOptions) { o.codec = c }
}

// Write serializes a snapshot: fixed header, codec-encoded schema section,
// raw subpopulation/flag/tag sections, then block-compressed genotype and
// auxiliary sections. Everything after the header is covered by the
// header's CRC-32.
func Write(w io.Writer, s *Snapshot, opts ...Option) error {
	o := writeOptions{compression: CompressionNone, codec: codec.Default}
	for _, opt := range opts {
		opt(&o)
	}

	popSize := len(s.Flags)
	if len(s.Tags) != popSize {
		return fmt.Errorf("tag count %d, want %d", len(s.Tags), popSize)
	}
	total := uint64(0)
	for _, sz := range s.SubPopSizes {
		total += sz
	}
	if total != uint64(popSize) {
		return fmt.Errorf("subpopulation sizes sum to %d, want %d", total, popSize)
	}

	schemaBytes, err := o.codec.Marshal(s.Schema)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	cw := NewChecksumWriter(&body)

	if _, err := cw.Write(schemaBytes); err != nil {
		return err
	}
	for _, raw := range []func() ([]byte, error){
		func() ([]byte, error) { return uint64Bytes(s.SubPopSizes) },
		func() ([]byte, error) { return s.Flags, nil },
		func() ([]byte, error) { return int64Bytes(s.Tags) },
	} {
		b, err := raw()
		if err != nil {
			return err
		}
		if _, err := cw.Write(b); err != nil {
			return err
		}
	}

	genoBytes, err := uint16Bytes(s.Genotype)
	if err != nil {
		return err
	}
	if err := writeBlock(cw, genoBytes, o.compression); err != nil {
		return err
	}
	infoBytes, err := float64Bytes(s.Info)
	if err != nil {
		return err
	}
	if err := writeBlock(cw, infoBytes, o.compression); err != nil {
		return err
	}

	header := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(o.compression),
		PopSize:     uint64(popSize),
		NumSubPops:  uint32(len(s.SubPopSizes)),
		SchemaLen:   uint32(len(schemaBytes)),
		Checksum:    cw.Sum(),
	}
	copy(header.CodecName[:], o.codec.Name())

	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func writeBlock(w io.Writer, data []byte, ct CompressionType) error {
	block, err := compressBlock(data, ct)
	if err != nil {
		return err
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(block)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err = w.Write(block)
	return err
}

// Read deserializes a snapshot and verifies its checksum. Version 1 files
// get the sex-chromosome flag defaulted to false and the auxiliary-field
// list defaulted to empty.
func Read(r io.Reader) (*Snapshot, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version < MinVersion || header.Version > Version {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	codecName := string(bytes.TrimRight(header.CodecName[:], "\x00"))
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codecName)
	}
	ct := CompressionType(header.Compression)

	cr := NewChecksumReader(r)
	s := &Snapshot{}

	schemaBytes := make([]byte, header.SchemaLen)
	if _, err := io.ReadFull(cr, schemaBytes); err != nil {
		return nil, err
	}
	if err := c.Unmarshal(schemaBytes, &s.Schema); err != nil {
		return nil, err
	}

	popSize := int(header.PopSize)
	s.SubPopSizes = make([]uint64, header.NumSubPops)
	if b, err := uint64Bytes(s.SubPopSizes); err != nil {
		return nil, err
	} else if len(b) > 0 {
		if _, err := io.ReadFull(cr, b); err != nil {
			return nil, err
		}
	}
	s.Flags = make([]uint8, popSize)
	if popSize > 0 {
		if _, err := io.ReadFull(cr, s.Flags); err != nil {
			return nil, err
		}
	}
	s.Tags = make([]int64, popSize)
	if b, err := int64Bytes(s.Tags); err != nil {
		return nil, err
	} else if len(b) > 0 {
		if _, err := io.ReadFull(cr, b); err != nil {
			return nil, err
		}
	}

	genoBytes, err := readBlock(cr, ct)
	if err != nil {
		return nil, err
	}
	if len(genoBytes)%2 != 0 {
		return nil, fmt.Errorf("%w: odd genotype section length %d", ErrCorruptSection, len(genoBytes))
	}
	s.Genotype = make([]uint16, len(genoBytes)/2)
	if b, err := uint16Bytes(s.Genotype); err != nil {
		return nil, err
	} else {
		copy(b, genoBytes)
	}

	infoBytes, err := readBlock(cr, ct)
	if err != nil {
		return nil, err
	}
	if len(infoBytes)%8 != 0 {
		return nil, fmt.Errorf("%w: auxiliary section length %d not a multiple of 8", ErrCorruptSection, len(infoBytes))
	}
	s.Info = make([]float64, len(infoBytes)/8)
	if b, err := float64Bytes(s.Info); err != nil {
		return nil, err
	} else {
		copy(b, infoBytes)
	}

	if err := cr.Verify(header.Checksum); err != nil {
		return nil, err
	}

	if header.Version == 1 {
		s.Schema.SexChrom = false
		s.Schema.InfoFields = nil
	}
	return s, nil
}

func readBlock(r io.Reader, ct CompressionType) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	block := make([]byte, binary.LittleEndian.Uint32(size[:]))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return decompressBlock(block, ct)
}

// SaveToFile writes a snapshot to a file via an atomic rename.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// LoadFromFile reads a snapshot from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}
