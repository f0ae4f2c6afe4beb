package storage

import "context"

// Storage archives submitted source by content hash for downstream
// auditing and duplicate-detection tooling.
type Storage interface {
	Upload(ctx context.Context, objectPath string, data []byte) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
	ShutDown()
}
