// Copyright 2025 James Ross
package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// backendSuite exercises the Backend contract identically across every
// concrete implementation, so a new backend only needs to be added here to
// inherit full contract coverage.
func backendSuite(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	const address = "deadbeefcafebabe0000000000000000000000000000000000000000000001"
	data := []byte("chunk payload")

	exists, err := b.ChunkExists(ctx, address)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = b.GetChunk(ctx, address)
	require.Error(t, err)
	assert.Equal(t, vaulterr.KindNotFound, vaulterr.KindOf(err))

	require.NoError(t, b.PutChunk(ctx, address, data))

	exists, err = b.ChunkExists(ctx, address)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := b.GetChunk(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	addrs, err := b.ListChunks(ctx)
	require.NoError(t, err)
	assert.Contains(t, addrs, address)

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalChunks)

	require.NoError(t, b.PutMetadata(ctx, "snapshot-1", []byte("meta")))
	meta, err := b.GetMetadata(ctx, "snapshot-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("meta"), meta)

	require.NoError(t, b.DeleteChunk(ctx, address))
	exists, err = b.ChunkExists(ctx, address)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryBackendContract(t *testing.T) {
	backendSuite(t, NewMemory())
}

func TestLocalBackendContract(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	backendSuite(t, b)
}

func TestLocalBackendPutIsDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	address := "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"

	b, err := NewLocal(dir)
	require.NoError(t, err)
	require.NoError(t, b.PutChunk(ctx, address, []byte("durable")))

	reopened, err := NewLocal(dir)
	require.NoError(t, err)
	data, err := reopened.GetChunk(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), data)
}

func TestRedisBackendContract(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	backendSuite(t, NewRedisFromClient(client, "vaultkeep:"))
}

func TestRetryingOpensCircuitAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	failing := &alwaysFailBackend{}
	r := NewRetrying(failing, time.Minute, 50*time.Millisecond, 0.5, 2, "test")

	_, err1 := r.GetChunk(ctx, "addr")
	_, err2 := r.GetChunk(ctx, "addr")
	require.Error(t, err1)
	require.Error(t, err2)

	_, err3 := r.GetChunk(ctx, "addr")
	require.Error(t, err3)
	assert.Equal(t, vaulterr.KindStorage, vaulterr.KindOf(err3))
	assert.Equal(t, 2, failing.calls, "circuit should be open, blocking the third call before it reaches the backend")
}

func TestRetryingDoesNotTripOnNotFound(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	r := NewRetrying(mem, time.Minute, 50*time.Millisecond, 0.5, 2, "test")

	for i := 0; i < 5; i++ {
		_, err := r.GetChunk(ctx, "missing")
		require.Error(t, err)
		assert.Equal(t, vaulterr.KindNotFound, vaulterr.KindOf(err))
	}

	require.NoError(t, r.PutChunk(ctx, "addr", []byte("ok")))
	data, err := r.GetChunk(ctx, "addr")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}

type alwaysFailBackend struct {
	calls int
}

func (a *alwaysFailBackend) PutChunk(context.Context, string, []byte) error { return nil }
func (a *alwaysFailBackend) GetChunk(context.Context, string) ([]byte, error) {
	a.calls++
	return nil, vaulterr.New(vaulterr.KindStorage, "simulated backend failure")
}
func (a *alwaysFailBackend) ChunkExists(context.Context, string) (bool, error) { return false, nil }
func (a *alwaysFailBackend) DeleteChunk(context.Context, string) error        { return nil }
func (a *alwaysFailBackend) ListChunks(context.Context) ([]string, error)     { return nil, nil }
func (a *alwaysFailBackend) PutMetadata(context.Context, string, []byte) error { return nil }
func (a *alwaysFailBackend) GetMetadata(context.Context, string) ([]byte, error) {
	return nil, nil
}
func (a *alwaysFailBackend) DeleteMetadata(context.Context, string) error { return nil }
func (a *alwaysFailBackend) Stats(context.Context) (Stats, error) { return Stats{}, nil }
