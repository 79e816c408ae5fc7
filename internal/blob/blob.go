// Package blob defines the Blob Store: an object store holding uploaded
// images under generated keys. Backends: S3, local disk and memory.
package blob

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cinelog/catalog-api/internal/metrics"

	"github.com/google/uuid"
)

// ImageContentType is the content type images are stored with.
const ImageContentType = "image/png"

var (
	// ErrNotFound is returned by Get when no object exists under the key.
	ErrNotFound = errors.New("blob: not found")

	// ErrInvalidKey is returned for keys that could escape the key namespace.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Store is an object store addressed by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey generates a fresh image key.
func NewKey() string {
	return uuid.NewString() + ".png"
}

// ValidKey reports whether key is a single, non-empty path element.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.ContainsRune(key, 0)
}

// Bound derives a context limited by timeout.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func observe(backend, operation string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordBlobCall(backend, operation, err, time.Since(start))
}
