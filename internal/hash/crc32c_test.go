package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32CStrided(t *testing.T) {
	packed := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, CRC32C(packed), CRC32CStrided(packed, 0, 4, 4, 2))

	// Padding bytes (9, 9) are ignored.
	strided := []byte{1, 2, 3, 4, 9, 9, 5, 6, 7, 8, 9, 9}
	assert.Equal(t, CRC32C(packed), CRC32CStrided(strided, 0, 6, 4, 2))

	mutated := append([]byte(nil), strided...)
	mutated[4] = 0
	assert.Equal(t, CRC32CStrided(strided, 0, 6, 4, 2), CRC32CStrided(mutated, 0, 6, 4, 2))

	mutated[0] = 0
	assert.NotEqual(t, CRC32CStrided(strided, 0, 6, 4, 2), CRC32CStrided(mutated, 0, 6, 4, 2))
}
