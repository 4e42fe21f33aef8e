//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/utils/cache"
)

func TestGet_LoadsOnceUntilExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	c := New(
		WithExpiration[string, int](time.Minute),
		WithClock[string, int](func() time.Time { return now }),
		WithLoader(func(ctx context.Context, key string) (*int, error) {
			calls++
			v := len(key)
			return &v, nil
		}),
	)
	ctx := context.Background()

	v, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, *v)
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Minute)
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 2, calls)

	c.Invalidate(ctx, "abc")
	assert.Equal(t, 0, c.Len())
}

func TestGet_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := New[string, int]().Get(ctx, "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	boom := errors.New("boom")
	c := New(WithLoader(func(ctx context.Context, key string) (*int, error) {
		return nil, boom
	}))
	_, err = c.Get(ctx, "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}
