package hash

import (
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// CRC32CStrided checksums count elements of elemSize bytes placed every
// stride bytes starting at offset. Padding between elements is not covered,
// so callers may keep unrelated data interleaved in the same slice.
//
// The caller must have validated the layout against len(data).
func CRC32CStrided(data []byte, offset, stride, elemSize, count int) uint32 {
	if stride == elemSize {
		return CRC32C(data[offset : offset+count*stride])
	}
	var sum uint32
	for i := 0; i < count; i++ {
		start := offset + i*stride
		sum = crc32.Update(sum, crc32cTable, data[start:start+elemSize])
	}
	return sum
}
