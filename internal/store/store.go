// Package store persists named JSON documents.
//
// Every document is replaced as a whole: readers see either the previous
// version or the new one, never a partial write. Callers that read, modify
// and write a document hold Lock for the duration.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when the document has never been saved.
var ErrNotFound = errors.New("document not found")

// Store loads and saves JSON documents by name.
type Store interface {
	// Load decodes the named document into v.
	Load(ctx context.Context, name string, v any) error
	// Save encodes v and atomically replaces the named document.
	Save(ctx context.Context, name string, v any) error
	// Lock blocks until the caller holds the store's exclusive section.
	Lock(ctx context.Context) (unlock func(), err error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Backend string
	Dir     string

	DatabaseURL     string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open builds the configured backend. The returned close func releases any
// pooled connections and is safe to call once.
func Open(ctx context.Context, opts OpenOptions) (Store, func(), error) {
	switch opts.Backend {
	case BackendFile, "":
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case BackendPostgres:
		ps, err := ConnectPostgres(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		if err := ps.Migrate(ctx); err != nil {
			ps.Close()
			return nil, nil, err
		}
		return ps, ps.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

// validName rejects names that would escape the store's namespace.
func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
