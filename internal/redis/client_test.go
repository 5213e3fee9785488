package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClientConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(mr.Addr(), "", "", 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	require.Equal(t, 5, client.Options().PoolSize)
}

func TestNewRedisClientDefaultsPoolSize(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(mr.Addr(), "", "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, 10, client.Options().PoolSize)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(addr, "", "", 5)
	require.Error(t, err)
}
