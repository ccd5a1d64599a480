// Package archive persists finished run documents to cold storage so
// results survive beyond the local run index. Backends implement the
// flat Storage interface; Archive layers the document conventions on
// top: JSON encoding and results/<run-id>.json keys.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/quantbed/quantbed/internal/backtest"
	"github.com/quantbed/quantbed/internal/config"
	"github.com/quantbed/quantbed/internal/core"
)

// Storage is a flat byte store keyed by slash-separated paths.
type Storage interface {
	// Write stores data at key, overwriting any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves the value at key.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns every key under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the value at key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a value is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

const resultPrefix = "results"

// Archive stores run documents in a Storage backend.
type Archive struct {
	store Storage
}

// New wraps a storage backend with the run-document conventions.
func New(store Storage) *Archive {
	return &Archive{store: store}
}

// FromConfig builds the configured archive, or nil when archiving is
// disabled.
func FromConfig(cfg config.ArchiveConfig) (*Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "", "localfs":
		store, err := NewLocalFS(cfg.Path)
		if err != nil {
			return nil, err
		}
		return New(store), nil
	case "s3":
		store, err := NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return New(store), nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}

func resultKey(id string) string {
	return path.Join(resultPrefix, id+".json")
}

// SaveResult writes the run document and returns the key it landed at.
func (a *Archive) SaveResult(ctx context.Context, res *backtest.Result) (string, error) {
	if res == nil || res.ID == "" {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("result has no id"))
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("encoding run %s: %w", res.ID, err))
	}
	key := resultKey(res.ID)
	if err := a.store.Write(ctx, key, data); err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("writing %s: %w", key, err))
	}
	return key, nil
}

// LoadResult reads a run document back by id.
func (a *Archive) LoadResult(ctx context.Context, id string) (*backtest.Result, error) {
	key := resultKey(id)

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("checking %s: %w", key, err))
	}
	if !exists {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("run %s not archived", id))
	}

	data, err := a.store.Read(ctx, key)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("reading %s: %w", key, err))
	}
	var res backtest.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("decoding %s: %w", key, err))
	}
	return &res, nil
}

// ListResults returns the archived run ids in sorted order.
func (a *Archive) ListResults(ctx context.Context) ([]string, error) {
	keys, err := a.store.List(ctx, resultPrefix)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("listing %s: %w", resultPrefix, err))
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, resultPrefix+"/")
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteResult removes an archived run document.
func (a *Archive) DeleteResult(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, resultKey(id)); err != nil {
		return core.WrapError(core.ErrArchiveFailed, fmt.Errorf("deleting run %s: %w", id, err))
	}
	return nil
}
