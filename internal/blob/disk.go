package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const backendDisk = "disk"

// Disk stores each image as a file under root. Writes go to a temp file that
// is renamed into place, so readers never see a partial image. Every call is
// bounded by timeout; a put whose deadline passes before the rename leaves
// nothing behind.
type Disk struct {
	root    string
	timeout time.Duration
}

func NewDisk(root string, timeout time.Duration) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", root, err)
	}
	return &Disk{root: root, timeout: timeout}, nil
}

func (d *Disk) Put(ctx context.Context, key string, data []byte, _ string) (err error) {
	defer func(start time.Time) { observe(backendDisk, "put", start, err) }(time.Now())
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	ctx, cancel := Bound(ctx, d.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.root, "pending-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (d *Disk) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) { observe(backendDisk, "get", start, err) }(time.Now())
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	ctx, cancel := Bound(ctx, d.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err = os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Disk) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe(backendDisk, "delete", start, err) }(time.Now())
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	ctx, cancel := Bound(ctx, d.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	err = os.Remove(d.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (d *Disk) path(key string) string {
	return filepath.Join(d.root, key)
}
