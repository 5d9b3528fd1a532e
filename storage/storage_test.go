package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T, s Storage) {
	ctx := context.Background()

	ok, err := s.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	value := bytes.Repeat([]byte("road"), 64)
	err = s.Put(ctx, "key", value)
	require.NoError(t, err)

	ok, err = s.Has(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)

	actual, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, value, actual)

	err = s.Put(ctx, "key", []byte("replaced"))
	require.NoError(t, err)

	actual, err = s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), actual)
}

func TestMemory(t *testing.T) {
	testStorage(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	value := []byte("abc")
	require.NoError(t, s.Put(ctx, "key", value))
	value[0] = 'x'

	actual, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), actual)
}

func TestBadger(t *testing.T) {
	s, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	testStorage(t, s)
}

func TestCompressed(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()

	s, err := Compressed(base)
	require.NoError(t, err)

	testStorage(t, s)

	value := bytes.Repeat([]byte("geometry"), 512)
	require.NoError(t, s.Put(ctx, "big", value))

	raw, err := base.Get(ctx, "big")
	require.NoError(t, err)
	assert.Less(t, len(raw), len(value))
}
