// Package blob stores generated pipeline scripts as content-addressed
// artifacts, on the local filesystem by default or in S3 when configured.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/utils"
)

// Store is the interface for pluggable artifact storage backends.
type Store interface {
	Put(ctx context.Context, data []byte, mime, filename string) (url string, err error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// NewDefaultStore returns a Store based on config, defaulting to the
// filesystem store under the standard artifact directory.
func NewDefaultStore(ctx context.Context, cfg *config.BlobConfig) (Store, error) {
	if cfg == nil || cfg.Driver == "" || cfg.Driver == "filesystem" {
		dir := config.DefaultArtifactDir
		if cfg != nil && cfg.Directory != "" {
			dir = cfg.Directory
		}
		return NewFilesystemStore(dir)
	}
	if cfg.Driver == "s3" {
		if cfg.Bucket == "" || cfg.Region == "" {
			return nil, utils.Errorf("s3 driver requires bucket and region")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Region)
	}
	return nil, utils.Errorf("unsupported blob driver: %s", cfg.Driver)
}

// ScriptKey names a generated script artifact by pipeline name and the
// first 8 hex chars of the script's digest, so regenerated identical code
// lands on the same key.
func ScriptKey(pipelineName string, code []byte) string {
	sum := sha256.Sum256(code)
	return fmt.Sprintf("%s-%s.py", pipelineName, hex.EncodeToString(sum[:])[:8])
}
