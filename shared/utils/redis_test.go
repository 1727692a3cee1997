package utils

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		RedisClient.Close()
		RedisClient = nil
	})
	return mr
}

func TestCacheSetGet(t *testing.T) {
	setupMiniredis(t)

	require.NoError(t, CacheSet("token:abc", `{"issuer":"did:ethr:0x1"}`, time.Hour))
	val, err := CacheGet("token:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"issuer":"did:ethr:0x1"}`, val)
}

func TestCacheGetMissingKey(t *testing.T) {
	setupMiniredis(t)

	_, err := CacheGet("nope")
	assert.EqualError(t, err, "key not found")
}

func TestCacheExpiry(t *testing.T) {
	mr := setupMiniredis(t)

	require.NoError(t, CacheSet("token:abc", "cached", time.Hour))
	mr.FastForward(2 * time.Hour)

	_, err := CacheGet("token:abc")
	assert.Error(t, err)
}

func TestCacheDelete(t *testing.T) {
	setupMiniredis(t)

	require.NoError(t, CacheSet("token:abc", "cached", time.Hour))
	require.NoError(t, CacheDelete("token:abc"))
	_, err := CacheGet("token:abc")
	assert.Error(t, err)
}

func TestCacheWithoutClient(t *testing.T) {
	RedisClient = nil

	assert.Error(t, CacheSet("k", "v", time.Minute))
	_, err := CacheGet("k")
	assert.Error(t, err)
	assert.Error(t, CacheDelete("k"))
	assert.NoError(t, CloseRedis())
}
