package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseISA(t *testing.T) {
	for _, isa := range []ISA{Generic, NEON, SVE2, AVX2, AVX512} {
		got, ok := ParseISA(" " + isa.String() + " ")
		assert.True(t, ok)
		assert.Equal(t, isa, got)
	}

	_, ok := ParseISA("mmx")
	assert.False(t, ok)
}

func TestISAWidth(t *testing.T) {
	assert.Equal(t, 16, AVX512.Width())
	assert.Equal(t, 8, AVX2.Width())
	assert.Equal(t, 4, NEON.Width())
	assert.Equal(t, 4, Generic.Width())
}

func TestActiveISAAvailable(t *testing.T) {
	assert.True(t, isISAAvailable(ActiveISA()))
	assert.Equal(t, ActiveISA().Width(), MaxWidth())
}
