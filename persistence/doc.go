// Package persistence implements the binary snapshot format for the live
// generation of a population: a fixed header, a codec-encoded schema
// section, and raw little-endian buffer sections with optional block
// compression, all covered by a CRC-32 checksum.
package persistence
