package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	payload := []byte("some audio bytes")
	info, err := store.Put(payload, "audio/wav")
	require.NoError(t, err)
	require.NotEmpty(t, info.BlobID)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.Equal(t, "audio/wav", info.ContentType)

	data, got, err := store.Get(info.BlobID)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, info.BlobID, got.BlobID)
	assert.Equal(t, "audio/wav", got.ContentType)
}

func TestPutAssignsDistinctIDs(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Put([]byte("same content"), "")
	require.NoError(t, err)
	b, err := store.Put([]byte("same content"), "")
	require.NoError(t, err)
	assert.NotEqual(t, a.BlobID, b.BlobID)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Get("no-such-blob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStat(t *testing.T) {
	store := newTestStore(t)

	info, err := store.Put([]byte("12345"), "text/plain")
	require.NoError(t, err)

	got, err := store.Stat(info.BlobID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Size)
	assert.Equal(t, "text/plain", got.ContentType)

	_, err = store.Stat("no-such-blob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayEnforcesSizeLimit(t *testing.T) {
	store := newTestStore(t)
	gw := NewGateway(store, 8)

	_, err := gw.Put(make([]byte, 16), "")
	assert.Error(t, err)

	id, err := gw.Put([]byte("tiny"), "")
	require.NoError(t, err)

	data, err := gw.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), data)

	size, err := gw.Size(id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestGatewayUnlimitedWhenZero(t *testing.T) {
	store := newTestStore(t)
	gw := NewGateway(store, 0)

	id, err := gw.Put(make([]byte, 1<<20), "application/octet-stream")
	require.NoError(t, err)

	data, info, err := gw.Fetch(id)
	require.NoError(t, err)
	assert.Len(t, data, 1<<20)
	assert.Equal(t, "application/octet-stream", info.ContentType)
}
