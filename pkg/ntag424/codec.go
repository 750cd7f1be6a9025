package ntag424

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrLengthMismatch is returned by Xor when its operands differ in length.
var ErrLengthMismatch = errors.New("length mismatch")

// RotateLeft returns a copy of b rotated left by n bytes.
// RotateLeft(rndB, 1) is the RndB' echoed back during EV2First.
func RotateLeft(b []byte, n int) []byte {
	out := make([]byte, len(b))
	if len(b) == 0 {
		return out
	}
	n %= len(b)
	if n < 0 {
		n += len(b)
	}
	copy(out, b[n:])
	copy(out[len(b)-n:], b[:n])
	return out
}

// Xor returns a XOR b. Both operands must be the same length.
func Xor(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("xor %d and %d bytes: %w", len(a), len(b), ErrLengthMismatch)
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// Pad appends 0x80 and zero bytes up to the next multiple of blockSize.
// Data that is already block aligned is returned unchanged; the tag firmware
// this targets never receives an all-padding block.
func Pad(data []byte, blockSize int) []byte {
	out := make([]byte, len(data), len(data)+blockSize)
	copy(out, data)
	if blockSize <= 0 || len(data)%blockSize == 0 {
		return out
	}
	out = append(out, 0x80)
	for len(out)%blockSize != 0 {
		out = append(out, 0x00)
	}
	return out
}

// JamCRC32 returns the complemented IEEE CRC-32 of data as 4 little-endian
// bytes. This is the checksum the tag expects after the XORed key in a
// ChangeKey payload.
func JamCRC32(data []byte) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, ^crc32.ChecksumIEEE(data))
	return out
}

// CMACShort computes AES-CMAC(key, msg) and keeps the bytes at odd indices.
// The resulting 8-byte MAC is appended to every secure messaging command.
func CMACShort(key, msg []byte) ([]byte, error) {
	mac, err := aesCMAC(key, msg)
	if err != nil {
		return nil, err
	}
	return truncateOddBytes(mac), nil
}

func putU24le(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

func readU24le(data []byte, offset int) uint32 {
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16
}

func u24le(v uint32) []byte {
	out := make([]byte, 3)
	putU24le(out, v)
	return out
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Unpad strips ISO/IEC 9797-1 method 2 padding.
func Unpad(data []byte) ([]byte, error) {
	return unpadISO9797M2(data)
}
