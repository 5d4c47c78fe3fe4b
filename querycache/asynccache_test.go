package querycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncCache_computesOnce(t *testing.T) {
	c := NewAsyncCache[int](0)

	var calls int32
	compute := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v1, err := c.Get(context.Background(), "k", compute)
	require.NoError(t, err)
	v2, err := c.Get(context.Background(), "k", compute)
	require.NoError(t, err)

	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAsyncCache_failureNotCached(t *testing.T) {
	c := NewAsyncCache[int](0)

	var calls int32
	compute := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, errors.New("boom")
		}
		return 7, nil
	}

	_, err := c.Get(context.Background(), "k", compute)
	require.Error(t, err)

	v, err := c.Get(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAsyncCache_boundedEviction(t *testing.T) {
	c := NewAsyncCache[int](1)

	_, err := c.Get(context.Background(), "a", func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "b", func(ctx context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)

	assert.False(t, c.Finished("a"))
	assert.True(t, c.Finished("b"))
}
