package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemory_TTL(t *testing.T) {
	c := NewMemory()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_DeletePattern(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, PortfolioKey("0xu", "0xa"), []byte("1"), 0))
	require.NoError(t, c.Set(ctx, PortfolioKey("0xu", "0xb"), []byte("2"), 0))
	require.NoError(t, c.Set(ctx, PortfolioKey("0xv", "0xa"), []byte("3"), 0))
	require.NoError(t, c.Set(ctx, TokenKey("0xa"), []byte("4"), 0))

	require.NoError(t, c.DeletePattern(ctx, PortfolioPrefix("0xu")))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, PortfolioKey("0xv", "0xa"))
	assert.NoError(t, err)
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	type row struct {
		Name string `json:"name"`
	}
	require.NoError(t, SetJSON(ctx, c, "row", row{Name: "alpha"}, time.Minute))

	var got row
	require.NoError(t, GetJSON(ctx, c, "row", &got))
	assert.Equal(t, "alpha", got.Name)

	assert.ErrorIs(t, GetJSON(ctx, Noop{}, "row", &got), ErrMiss)
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
