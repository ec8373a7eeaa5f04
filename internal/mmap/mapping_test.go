package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon_ReadWriteClose(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	assert.Equal(t, 4096, m.Size())
	b := m.Bytes()
	require.Len(t, b, 4096)
	assert.Equal(t, byte(0), b[0], "anonymous memory is zeroed")

	copy(b, []byte("pinned"))
	assert.Equal(t, "pinned", string(m.Bytes()[:6]))

	require.NoError(t, m.Advise(AccessRandom))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessDefault), ErrClosed)
	assert.ErrorIs(t, m.Lock(), ErrClosed)
}

func TestMapAnon_Lock(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)
	defer m.Close()

	// mlock may be refused by RLIMIT_MEMLOCK in CI; only the bookkeeping is asserted.
	if err := m.Lock(); err != nil {
		assert.False(t, m.Locked())
		return
	}
	assert.True(t, m.Locked())
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}
