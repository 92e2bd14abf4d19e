package remotecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetPutMiss(t *testing.T) {
	c, err := NewCache(4)
	require.NoError(t, err)

	_, ok := c.Get("root.sg.d1.s1")
	assert.False(t, ok)

	c.Put("root.sg.d1.s1", Entry{Schema: []byte("schema")})
	entry, ok := c.Get("root.sg.d1.s1")
	require.True(t, ok)
	assert.Equal(t, []byte("schema"), entry.Schema)
}

func TestCacheRemovePrefix(t *testing.T) {
	c, err := NewCache(8)
	require.NoError(t, err)

	c.Put("root.sg.d1.s1", Entry{})
	c.Put("root.sg.d1.s2", Entry{})
	c.Put("root.sg.d2.s1", Entry{})

	c.RemovePrefix("root.sg.d1")

	_, ok := c.Get("root.sg.d1.s1")
	assert.False(t, ok)
	_, ok = c.Get("root.sg.d1.s2")
	assert.False(t, ok)
	_, ok = c.Get("root.sg.d2.s1")
	assert.True(t, ok)
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	c.Put("a", Entry{})
	c.Put("b", Entry{})
	c.Put("c", Entry{})

	assert.Equal(t, 2, c.Len())
}
