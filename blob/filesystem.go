package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/twingraph/twingraph/utils"
)

// FilesystemStore implements Store using the local filesystem. This is the
// default artifact store for local and dev use.
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore creates the directory if it does not exist.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{dir: dir}, nil
}

// Put stores the artifact as a file and returns a file:// URL. The write
// goes through a temp file so readers never see partial content.
func (f *FilesystemStore) Put(ctx context.Context, data []byte, mime, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("artifact-%d", time.Now().UnixNano())
	}
	path := filepath.Join(f.dir, filename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return "file://" + path, nil
}

// Get retrieves the artifact from a file:// URL.
func (f *FilesystemStore) Get(ctx context.Context, url string) ([]byte, error) {
	const prefix = "file://"
	if !strings.HasPrefix(url, prefix) {
		return nil, utils.Errorf("invalid file URL: %s", url)
	}
	return os.ReadFile(url[len(prefix):])
}
