package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "trends_next.js", Key("Next.js"))
	assert.Equal(t, "trends_home_espresso_machines", Key("  Home Espresso Machines "))
}

func TestMemory_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c := &memory{m: make(map[string]entry), now: func() time.Time { return now }}

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "memory", c.Kind())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	val := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", val, 0))
	val[0] = 'z'

	got, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}

func TestNew_SelectsBackend(t *testing.T) {
	assert.Equal(t, "memory", New(Config{}).Kind())

	c := New(Config{RedisAddr: "localhost:6379"})
	assert.Equal(t, "redis", c.Kind())
	closer, ok := c.(io.Closer)
	require.True(t, ok, "redis cache must be closable")
	assert.NoError(t, closer.Close())
}

func TestRedisCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "nicheradar:", 0)
	ctx := context.Background()

	t.Run("cache hit returns value", func(t *testing.T) {
		mock.ExpectGet("nicheradar:trends_sourdough").SetVal(`{"score":66}`)

		value, found, err := c.Get(ctx, "trends_sourdough")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"score":66}`, string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache miss returns not found", func(t *testing.T) {
		mock.ExpectGet("nicheradar:trends_missing").RedisNil()

		value, found, err := c.Get(ctx, "trends_missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error returns error", func(t *testing.T) {
		mock.ExpectGet("nicheradar:trends_error").SetErr(redis.TxFailedErr)

		_, found, err := c.Get(ctx, "trends_error")
		assert.Error(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "nicheradar:", 0)
	ctx := context.Background()

	mock.ExpectSet("nicheradar:trends_sourdough", []byte(`{"score":66}`), DefaultTTL).SetVal("OK")
	require.NoError(t, c.Set(ctx, "trends_sourdough", []byte(`{"score":66}`), DefaultTTL))

	mock.ExpectSet("nicheradar:trends_x", []byte("v"), time.Minute).SetErr(redis.TxFailedErr)
	assert.Error(t, c.Set(ctx, "trends_x", []byte("v"), time.Minute))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "redis", c.Kind())
}

func TestRedisCache_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "nicheradar:", 0)
	ctx := context.Background()

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, c.Ping(ctx))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.ErrorContains(t, c.Ping(ctx), "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
