// Package cas provides the content-addressable store interface and its IPFS
// HTTP implementation. The store is allowed to be unavailable: the transcript
// anchorer falls back to a deterministic local digest when pinning fails.
package cas

import "context"

// Store pins and retrieves byte blobs by content identifier.
type Store interface {
	// Pin stores data and returns its CID.
	Pin(ctx context.Context, data []byte) (string, error)
	// Retrieve fetches the blob for a CID.
	Retrieve(ctx context.Context, cid string) ([]byte, error)
}
