package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir copies archives into a local directory.
type Dir struct {
	Path string
}

func NewDir(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("dir sink requires a path")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("dir sink: %w", err)
	}
	return &Dir{Path: path}, nil
}

func (d *Dir) Name() string {
	return "dir:" + d.Path
}

func (d *Dir) Send(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	target := filepath.Join(d.Path, filepath.Base(path))
	tmp, err := os.CreateTemp(d.Path, ".incoming-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
