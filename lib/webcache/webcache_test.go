package webcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := OpenFile(":memory:")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	key := Key("GET", "http://example.com/page", "")

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	err = cache.Set(ctx, key, "<html>1</html>")
	require.NoError(t, err)

	contents, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "<html>1</html>", contents)

	// overwrite
	err = cache.Set(ctx, key, "<html>2</html>")
	require.NoError(t, err)
	contents, _, err = cache.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "<html>2</html>", contents)

	err = cache.Clear(ctx)
	require.NoError(t, err)
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeyDisambiguatesPost(t *testing.T) {
	a := Key("POST", "http://example.com/list", "|6|1")
	b := Key("POST", "http://example.com/list", "|6|2")
	require.NotEqual(t, a, b)
}
