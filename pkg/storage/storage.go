package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/numbers2pdf/config"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
	"github.com/feichai0017/numbers2pdf/pkg/storage/memory"
	"github.com/feichai0017/numbers2pdf/pkg/storage/minio"
	"github.com/feichai0017/numbers2pdf/pkg/storage/objerr"
	"github.com/feichai0017/numbers2pdf/pkg/storage/s3"
)

// StorageType names a backend
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = objerr.ErrNotFound

// Storage keeps generated artifacts.
type Storage interface {
	// Store writes the reader's content under key
	Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold and
	// returns how many were removed
	CleanupBefore(ctx context.Context, threshold time.Time) (int, error)
}

// NewStorage builds the backend selected by cfg.Type.
func NewStorage(cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeS3:
		return s3.NewS3Storage(context.Background(), cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(context.Background(), cfg.Minio, log)
	case StorageTypeMemory, "":
		return memory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
