// Verified unsafe slice views with runtime platform checks. The snapshot
// sections are raw little-endian buffers, so writers and readers reinterpret
// typed slices as bytes instead of element-wise encoding.
package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned on CPU architectures the raw
	// buffer path does not support.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned on big-endian systems.
	ErrBigEndian = errors.New("big-endian systems are not supported")

	// ErrUnalignedAccess is returned when a slice is not naturally aligned.
	ErrUnalignedAccess = errors.New("unaligned memory access detected")
)

func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("popstore/persistence: %v", err))
	}
}

func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}
	if !isLittleEndian() {
		return ErrBigEndian
	}
	return nil
}

func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

func validateAlignment(ptr, size uintptr) error {
	if ptr%size != 0 {
		return fmt.Errorf("%w: slice at address 0x%x, element size %d", ErrUnalignedAccess, ptr, size)
	}
	return nil
}

// uint16Bytes returns a byte view of a uint16 slice.
func uint16Bytes(s []uint16) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if err := validateAlignment(uintptr(unsafe.Pointer(&s[0])), 2); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*2), nil
}

// uint64Bytes returns a byte view of a uint64 slice.
func uint64Bytes(s []uint64) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if err := validateAlignment(uintptr(unsafe.Pointer(&s[0])), 8); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8), nil
}

// int64Bytes returns a byte view of an int64 slice.
func int64Bytes(s []int64) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if err := validateAlignment(uintptr(unsafe.Pointer(&s[0])), 8); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8), nil
}

// float64Bytes returns a byte view of a float64 slice.
func float64Bytes(s []float64) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if err := validateAlignment(uintptr(unsafe.Pointer(&s[0])), 8); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8), nil
}

// PlatformInfo returns information about the current platform.
func PlatformInfo() string {
	endian := "little-endian"
	if !isLittleEndian() {
		endian = "big-endian"
	}
	return fmt.Sprintf("GOOS=%s GOARCH=%s endianness=%s", runtime.GOOS, runtime.GOARCH, endian)
}
