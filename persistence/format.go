package persistence

import "errors"

const (
	// MagicNumber identifies population snapshot files (ASCII: "POP0").
	MagicNumber = 0x504F5030
	// Version is the current file format version. Version 1 files lack
	// the sex-chromosome flag and the auxiliary-field list in their
	// schema section; readers default those to false and empty.
	Version = 2
	// MinVersion is the oldest version readers still accept.
	MinVersion = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrUnknownCodec   = errors.New("unknown codec")
	ErrCorruptSection = errors.New("corrupt section")
)

// FileHeader is the 64-byte header at the start of every snapshot file.
type FileHeader struct {
	Magic       uint32
	Version     uint32
	Compression uint8 // CompressionType of the buffer sections
	Padding1    [3]byte
	CodecName   [8]byte // schema section codec, NUL padded
	PopSize     uint64
	NumSubPops  uint32
	SchemaLen   uint32 // codec-encoded schema section length in bytes
	Checksum    uint32 // CRC-32 of everything after the header
	Padding2    [4]byte
	Reserved    [20]byte
}

// SchemaSection is the codec-encoded schema carried in every snapshot.
// Fields absent from version 1 files decode to their zero values.
type SchemaSection struct {
	Ploidy      int       `json:"ploidy"`
	NumLoci     []int     `json:"numLoci"`
	SexChrom    bool      `json:"sexChrom,omitempty"`
	LociPos     []float64 `json:"lociPos"`
	AlleleNames []string  `json:"alleleNames,omitempty"`
	LociNames   []string  `json:"lociNames,omitempty"`
	MaxAllele   uint16    `json:"maxAllele"`
	InfoFields  []string  `json:"infoFields,omitempty"`
}

// Snapshot is the serialized state of one live generation.
type Snapshot struct {
	Schema      SchemaSection
	SubPopSizes []uint64
	Flags       []uint8 // per-individual sex and affection bits
	Tags        []int64 // per-individual partition tags
	Genotype    []uint16
	Info        []float64
}
