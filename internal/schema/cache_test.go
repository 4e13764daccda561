package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Install_ThenGet(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)

	require.NoError(t, c.Install(baseSchema()))

	got, err := c.Get("products")
	require.NoError(t, err)
	assert.Equal(t, "products", got.IndexName)
}

func TestCache_Install_RejectsDuplicate(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)
	require.NoError(t, c.Install(baseSchema()))

	err = c.Install(baseSchema())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already installed")
}

func TestCache_Get_MissingIndex_NoProvider(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)

	_, err = c.Get("nope")

	require.Error(t, err)
}

func TestCache_Get_FallsBackToProvider(t *testing.T) {
	calls := 0
	c, err := NewCache(4, func(name string) (*Schema, error) {
		calls++
		return baseSchema(), nil
	})
	require.NoError(t, err)

	s1, err := c.Get("products")
	require.NoError(t, err)
	s2, err := c.Get("products")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls, "provider should only be called once, result is cached")
}

func TestCache_Evict(t *testing.T) {
	calls := 0
	c, err := NewCache(4, func(name string) (*Schema, error) {
		calls++
		return baseSchema(), nil
	})
	require.NoError(t, err)

	_, err = c.Get("products")
	require.NoError(t, err)
	c.Evict("products")
	_, err = c.Get("products")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCache_Len(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)
	require.NoError(t, c.Install(baseSchema()))

	assert.Equal(t, 1, c.Len())
}
