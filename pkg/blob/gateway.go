package blob

import (
	"fmt"

	"github.com/chorusnet/chorus/pkg/types"
)

// Gateway is the uniform GET/PUT layer over a Store. It enforces the
// configured size limit on writes; everything else is delegated.
type Gateway struct {
	store    Store
	maxBytes int64
}

// NewGateway wraps store with a size limit (0 disables the limit).
func NewGateway(store Store, maxBytes int64) *Gateway {
	return &Gateway{store: store, maxBytes: maxBytes}
}

// Put stores data and returns the new blob ID.
func (g *Gateway) Put(data []byte, contentType string) (string, error) {
	if g.maxBytes > 0 && int64(len(data)) > g.maxBytes {
		return "", fmt.Errorf("blob of %d bytes exceeds limit of %d", len(data), g.maxBytes)
	}
	info, err := g.store.Put(data, contentType)
	if err != nil {
		return "", err
	}
	return info.BlobID, nil
}

// Get returns the content of id.
func (g *Gateway) Get(id string) ([]byte, error) {
	data, _, err := g.store.Get(id)
	return data, err
}

// Fetch returns the content of id along with its metadata.
func (g *Gateway) Fetch(id string) ([]byte, *types.BlobInfo, error) {
	return g.store.Get(id)
}

// Stat returns the metadata of id without reading its content.
func (g *Gateway) Stat(id string) (*types.BlobInfo, error) {
	return g.store.Stat(id)
}

// Size returns the stored size of id.
func (g *Gateway) Size(id string) (int64, error) {
	info, err := g.store.Stat(id)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}
