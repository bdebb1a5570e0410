package storage

import (
	"context"
	"time"

	"github.com/mediarun/runtime/wire"
)

// MediaStorageService defines the interface for storing and retrieving the
// large wire.Buffer payloads a session chooses to externalize (e.g. Tensor
// or Video buffers above an inline-size threshold) rather than carry inline
// on the IPC bus or the client WebSocket connection.
// Implementations may store media in local filesystem, cloud storage, or
// other backends.
//
// Example usage:
//
//	store, err := local.NewFileStore(cfg)
//	ref, err := store.StoreMedia(ctx, buf, metadata)
//	if err != nil {
//	    return err
//	}
//	// Later...
//	buf, err := store.RetrieveMedia(ctx, ref)
//
// Implementations should be safe for concurrent use by multiple goroutines.
type MediaStorageService interface {
	// StoreMedia stores a wire buffer and returns a reference that can be
	// used to retrieve it later.
	StoreMedia(ctx context.Context, buf *wire.Buffer, metadata *MediaMetadata) (Reference, error)

	// RetrieveMedia retrieves a previously stored buffer by its reference.
	RetrieveMedia(ctx context.Context, reference Reference) (*wire.Buffer, error)

	// DeleteMedia deletes stored media by its reference.
	DeleteMedia(ctx context.Context, reference Reference) error

	// GetURL returns a URL that can be used to access the media.
	// For local storage, this returns a file:// URL.
	// For cloud storage, this may return a signed URL with expiration.
	GetURL(ctx context.Context, reference Reference, expiry time.Duration) (string, error)
}

// PolicyHandler defines the interface for applying and enforcing storage policies.
// Policies control media retention, cleanup, and other lifecycle management.
//
// Example usage:
//
//	// handler is any PolicyHandler implementation.
//	err := handler.ApplyPolicy(ctx, "/path/to/media.bin", "delete-after-10min")
//	if err != nil {
//	    return err
//	}
//	// Background enforcement
//	go func() {
//	    ticker := time.NewTicker(1 * time.Minute)
//	    for range ticker.C {
//	        handler.EnforcePolicy(ctx)
//	    }
//	}()
type PolicyHandler interface {
	// ApplyPolicy applies a named policy to a media file.
	// This typically stores policy metadata alongside the media.
	ApplyPolicy(ctx context.Context, filePath string, policyName string) error

	// EnforcePolicy scans stored media and enforces policies.
	// This is typically called periodically in the background.
	//
	// The implementation should:
	//   - Scan media directories for policy metadata
	//   - Apply policies (e.g., delete expired files)
	//   - Log enforcement actions
	//   - Handle errors gracefully (don't stop on permission denied, etc.)
	EnforcePolicy(ctx context.Context) error
}
