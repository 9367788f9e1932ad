package tools

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/clawinfra/aido/internal/process"
)

// FileOps is the filesystem backend of the file tools.
type FileOps interface {
	Stat(ctx context.Context, path string) (os.FileInfo, error)
	ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error)
	WalkDir(ctx context.Context, root string, fn fs.WalkDirFunc) error
	// ReadRange reads up to length bytes from offset (length < 0 means to
	// the end) and returns them with the file size.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, int64, error)
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
}

// ExecOps runs shell commands. *process.Runner satisfies it.
type ExecOps interface {
	Run(ctx context.Context, command, stdin string, timeout time.Duration, opts ...process.RunOption) (*process.Result, error)
}

// Cache is the TTL store used by fetch_url.
type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Prompter asks the human operator a question.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// LocalFileOps implements FileOps on the local filesystem.
type LocalFileOps struct{}

func (LocalFileOps) Stat(_ context.Context, path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (LocalFileOps) ReadDir(_ context.Context, path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (LocalFileOps) WalkDir(_ context.Context, root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (LocalFileOps) ReadRange(_ context.Context, path string, offset, length int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if offset > info.Size() {
		return []byte{}, info.Size(), nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek: %w", err)
	}
	var r io.Reader = f
	if length >= 0 {
		r = io.LimitReader(f, length)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return data, info.Size(), nil
}

func (LocalFileOps) WriteFile(_ context.Context, path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (LocalFileOps) Remove(_ context.Context, path string) error {
	return os.Remove(path)
}

func (LocalFileOps) Rename(_ context.Context, oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}
