package memobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("initial data is copied", func(t *testing.T) {
		b, err := New(nil, 4, []byte{1, 2})
		require.NoError(t, err)
		defer b.Release()
		assert.Equal(t, []byte{1, 2, 0, 0}, b.Bytes())
		assert.Equal(t, 4, b.Size())
	})

	t.Run("invalid sizes", func(t *testing.T) {
		_, err := New(nil, 0, nil)
		assert.Error(t, err)
		_, err = New(nil, 2, []byte{1, 2, 3})
		assert.Error(t, err)
	})
}

func TestBuffer_ReadWriteFill(t *testing.T) {
	b, err := New(nil, 8, nil)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.WriteAt([]byte{9, 9}, 6))
	require.NoError(t, b.Fill([]byte{1, 2}, 0, 4))

	got := make([]byte, 8)
	require.NoError(t, b.ReadAt(got, 0))
	assert.Equal(t, []byte{1, 2, 1, 2, 0, 0, 9, 9}, got)

	assert.Error(t, b.WriteAt([]byte{1, 2, 3}, 6), "past the end")
	assert.Error(t, b.ReadAt(make([]byte, 1), -1))
	assert.Error(t, b.Fill([]byte{1, 2}, 0, 3), "size not a pattern multiple")
}

func TestBuffer_CopyTo(t *testing.T) {
	src, err := New(nil, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	defer src.Release()
	dst, err := New(nil, 4, nil)
	require.NoError(t, err)
	defer dst.Release()

	require.NoError(t, src.CopyTo(dst, 1, 0, 3))
	assert.Equal(t, []byte{2, 3, 4, 0}, dst.Bytes())

	require.NoError(t, src.CopyTo(src, 0, 2, 2))
	assert.Equal(t, []byte{1, 2, 1, 2}, src.Bytes())

	assert.Error(t, src.CopyTo(src, 0, 1, 2), "overlap")
	assert.Error(t, src.CopyTo(dst, 3, 0, 2), "source range")
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(0, 1, 2))
	assert.True(t, Overlaps(4, 4, 1))
	assert.False(t, Overlaps(0, 2, 2))
	assert.False(t, Overlaps(2, 0, 2))
}
