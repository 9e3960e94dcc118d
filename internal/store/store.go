// Package store persists documents, published versions and custom component
// sources. Memory, SQLite and PostgreSQL implementations share one
// interface; publishing a version is the only operation that must be atomic.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Document is an authored document and its current draft.
type Document struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	DraftContent *tree.Node `json:"draftContent"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := *d
	if d.DraftContent != nil {
		c.DraftContent = tree.Clone(d.DraftContent)
	}
	return &c
}

// Version is an immutable published snapshot of a document.
type Version struct {
	DocumentID string     `json:"documentId"`
	Version    int        `json:"version"`
	Content    *tree.Node `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ListOptions page and filter ListDocuments.
type ListOptions struct {
	Query  string // substring of title or slug
	Limit  int
	Offset int
}

// Store is the persistence boundary of the lifecycle.
type Store interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentBySlug(ctx context.Context, slug string) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error)

	// PublishVersion atomically stores content as version max+1 of the
	// document and returns the new number. A collision with a concurrent
	// publisher fails with CREATE_FAILED.
	PublishVersion(ctx context.Context, documentID string, content *tree.Node, at time.Time) (int, error)
	GetVersion(ctx context.Context, documentID string, version int) (*Version, error)
	LatestVersion(ctx context.Context, documentID string) (*Version, error)
	ListVersions(ctx context.Context, documentID string) ([]*Version, error)

	SaveComponent(ctx context.Context, src registry.CustomSource) error
	DeleteComponent(ctx context.Context, key string) error
	ListComponents(ctx context.Context) ([]registry.CustomSource, error)

	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the store for driver. dsn is a file path for SQLite and a
// connection string for PostgreSQL.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "pg":
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown storage driver %q (expected memory, sqlite or postgres)", driver)
}

func matchesQuery(d *Document, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Slug), q)
}

func page[T any](items []T, opts ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
