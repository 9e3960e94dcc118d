package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Memory is an in-process Store. Values are copied on the way in and out, so
// callers never share trees with the store.
type Memory struct {
	mu         sync.RWMutex
	docs       map[string]*Document
	versions   map[string][]*Version
	components map[string]registry.CustomSource

	publishMu sync.Mutex
	publishLk map[string]*sync.Mutex
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:       make(map[string]*Document),
		versions:   make(map[string][]*Version),
		components: make(map[string]registry.CustomSource),
		publishLk:  make(map[string]*sync.Mutex),
	}
}

func (m *Memory) slugTaken(slug, exceptID string) bool {
	for _, d := range m.docs {
		if d.Slug == slug && d.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *Memory) CreateDocument(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return blockpress.Errorf(blockpress.CodeConflict, "store.create_document", "document %q already exists", doc.ID)
	}
	if m.slugTaken(doc.Slug, "") {
		return blockpress.Errorf(blockpress.CodeConflict, "store.create_document", "slug %q is already in use", doc.Slug)
	}
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, "store.get_document", "document %q not found", id)
	}
	return d.Clone(), nil
}

func (m *Memory) GetDocumentBySlug(_ context.Context, slug string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if d.Slug == slug {
			return d.Clone(), nil
		}
	}
	return nil, blockpress.Errorf(blockpress.CodeNotFound, "store.get_document", "no document with slug %q", slug)
}

func (m *Memory) UpdateDocument(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return blockpress.Errorf(blockpress.CodeNotFound, "store.update_document", "document %q not found", doc.ID)
	}
	if m.slugTaken(doc.Slug, doc.ID) {
		return blockpress.Errorf(blockpress.CodeConflict, "store.update_document", "slug %q is already in use", doc.Slug)
	}
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *Memory) ListDocuments(_ context.Context, opts ListOptions) ([]*Document, error) {
	m.mu.RLock()
	out := make([]*Document, 0, len(m.docs))
	for _, d := range m.docs {
		if matchesQuery(d, opts.Query) {
			out = append(out, d.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

// lockFor returns the publish mutex of one document.
func (m *Memory) lockFor(id string) *sync.Mutex {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	lk, ok := m.publishLk[id]
	if !ok {
		lk = &sync.Mutex{}
		m.publishLk[id] = lk
	}
	return lk
}

func (m *Memory) PublishVersion(_ context.Context, documentID string, content *tree.Node, at time.Time) (int, error) {
	lk := m.lockFor(documentID)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		return 0, blockpress.Errorf(blockpress.CodeNotFound, "store.publish", "document %q not found", documentID)
	}
	next := len(m.versions[documentID]) + 1
	m.versions[documentID] = append(m.versions[documentID], &Version{
		DocumentID: documentID,
		Version:    next,
		Content:    tree.Clone(content),
		CreatedAt:  at,
	})
	return next, nil
}

func cloneVersion(v *Version) *Version {
	c := *v
	c.Content = tree.Clone(v.Content)
	return &c
}

func (m *Memory) GetVersion(_ context.Context, documentID string, version int) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[documentID]
	if version < 1 || version > len(vs) {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, "store.get_version", "version %d of document %q not found", version, documentID)
	}
	return cloneVersion(vs[version-1]), nil
}

func (m *Memory) LatestVersion(_ context.Context, documentID string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[documentID]
	if len(vs) == 0 {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, "store.latest_version", "document %q has no published version", documentID)
	}
	return cloneVersion(vs[len(vs)-1]), nil
}

func (m *Memory) ListVersions(_ context.Context, documentID string) ([]*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[documentID]
	out := make([]*Version, len(vs))
	for i, v := range vs {
		out[i] = cloneVersion(v)
	}
	return out, nil
}

func (m *Memory) SaveComponent(_ context.Context, src registry.CustomSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src.Schema = copySchema(src.Schema)
	src.DefaultConfig = tree.CopyProps(src.DefaultConfig)
	m.components[src.Key] = src
	return nil
}

func (m *Memory) DeleteComponent(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.components[key]; !ok {
		return blockpress.Errorf(blockpress.CodeNotFound, "store.delete_component", "component %q not found", key)
	}
	delete(m.components, key)
	return nil
}

func (m *Memory) ListComponents(_ context.Context) ([]registry.CustomSource, error) {
	m.mu.RLock()
	out := make([]registry.CustomSource, 0, len(m.components))
	for _, c := range m.components {
		c.Schema = copySchema(c.Schema)
		c.DefaultConfig = tree.CopyProps(c.DefaultConfig)
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Close() error { return nil }

func copySchema(s map[string]registry.FieldSchema) map[string]registry.FieldSchema {
	if s == nil {
		return nil
	}
	out := make(map[string]registry.FieldSchema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
