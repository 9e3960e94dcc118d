// Package lifecycle implements the draft and publish lifecycle of documents:
// creating documents, editing their draft, and publishing immutable, numbered
// versions.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/store"
	"github.com/livetemplate/blockpress/internal/tree"
)

// State summarizes where a document is in its lifecycle.
type State string

const (
	StateNoDraft   State = "no-draft"
	StateDrafting  State = "drafting"
	StatePublished State = "published"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSlug reports whether s may be used as a document slug.
func ValidSlug(s string) bool {
	return len(s) <= 128 && slugPattern.MatchString(s)
}

// Slugify derives a slug from a title.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Service runs lifecycle operations against a store.
type Service struct {
	store   store.Store
	baseURL string
	now     func() time.Time
	debug   bool

	onPublish []func(doc *store.Document, res PublishResult)
}

// Option configures a Service.
type Option func(*Service)

// WithBaseURL sets the public base URL used in publish results.
func WithBaseURL(base string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDebug enables verbose logging.
func WithDebug(debug bool) Option {
	return func(s *Service) { s.debug = debug }
}

// WithOnPublish registers fn to run after every successful publish. Hooks
// run synchronously and must not block.
func WithOnPublish(fn func(doc *store.Document, res PublishResult)) Option {
	return func(s *Service) { s.onPublish = append(s.onPublish, fn) }
}

// New creates a lifecycle service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() store.Store { return s.store }

// CreateInput describes a new document.
type CreateInput struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	DraftContent *tree.Node `json:"draftContent,omitempty"`
}

func checkDraft(op string, n *tree.Node) error {
	if n == nil {
		return nil
	}
	if n.Type != tree.TypeDoc {
		return blockpress.Errorf(blockpress.CodeInvalidInput, op, "draft content must be a doc node, got %q", n.Type)
	}
	if err := tree.Validate(n); err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	return nil
}

func checkSlug(op, slug string) error {
	if !ValidSlug(slug) {
		return blockpress.Errorf(blockpress.CodeInvalidInput, op, "invalid slug %q", slug).
			WithHint("slugs use lowercase letters, digits and dashes")
	}
	return nil
}

// Create stores a new document. An empty slug is derived from the title.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Document, error) {
	const op = "lifecycle.create"
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled"
	}
	slug := in.Slug
	if slug == "" {
		slug = Slugify(title)
	}
	if err := checkSlug(op, slug); err != nil {
		return nil, err
	}
	if err := checkDraft(op, in.DraftContent); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	doc := &store.Document{
		ID:           uuid.NewString(),
		Slug:         slug,
		Title:        title,
		DraftContent: in.DraftContent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if s.debug {
		log.Printf("[Lifecycle] Created document %s (%s)", doc.ID, doc.Slug)
	}
	return doc, nil
}

// Get loads a document by id.
func (s *Service) Get(ctx context.Context, id string) (*store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// GetBySlug loads a document by slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*store.Document, error) {
	return s.store.GetDocumentBySlug(ctx, slug)
}

// List lists documents, most recently updated first.
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]*store.Document, error) {
	return s.store.ListDocuments(ctx, opts)
}

// Patch is a partial document update. Nil fields are left unchanged. When
// SetDraft is true DraftContent replaces the draft, and a nil DraftContent
// clears it.
type Patch struct {
	Title        *string
	Slug         *string
	SetDraft     bool
	DraftContent *tree.Node
}

// UnmarshalJSON distinguishes an absent draftContent from an explicit null.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["title"]; ok {
		var title string
		if err := json.Unmarshal(v, &title); err != nil {
			return fmt.Errorf("title: %w", err)
		}
		p.Title = &title
	}
	if v, ok := raw["slug"]; ok {
		var slug string
		if err := json.Unmarshal(v, &slug); err != nil {
			return fmt.Errorf("slug: %w", err)
		}
		p.Slug = &slug
	}
	if v, ok := raw["draftContent"]; ok {
		p.SetDraft = true
		p.DraftContent = nil
		if string(v) != "null" {
			n, err := tree.Parse(v)
			if err != nil {
				return fmt.Errorf("draftContent: %w", err)
			}
			p.DraftContent = n
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Slug == nil && !p.SetDraft
}

// Patch applies a partial update and returns the updated document.
func (s *Service) Patch(ctx context.Context, id string, p Patch) (*store.Document, error) {
	const op = "lifecycle.patch"
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		doc.Title = strings.TrimSpace(*p.Title)
	}
	if p.Slug != nil {
		if err := checkSlug(op, *p.Slug); err != nil {
			return nil, err
		}
		doc.Slug = *p.Slug
	}
	if p.SetDraft {
		if err := checkDraft(op, p.DraftContent); err != nil {
			return nil, err
		}
		doc.DraftContent = p.DraftContent
	}
	doc.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveDraft replaces the draft of a document.
func (s *Service) SaveDraft(ctx context.Context, id string, draft *tree.Node) (*store.Document, error) {
	return s.Patch(ctx, id, Patch{SetDraft: true, DraftContent: draft})
}

// PublishResult is returned by Publish.
type PublishResult struct {
	Version int    `json:"version"`
	URL     string `json:"url"`
}

// Publish snapshots the current draft as the next version. A document
// without a draft fails with NO_CONTENT and writes nothing; a collision with
// a concurrent publish fails with the retryable CREATE_FAILED.
func (s *Service) Publish(ctx context.Context, id string) (*PublishResult, error) {
	const op = "lifecycle.publish"
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DraftContent == nil {
		return nil, blockpress.Errorf(blockpress.CodeNoContent, op, "document %q has no draft to publish", doc.Slug)
	}

	n, err := s.store.PublishVersion(ctx, doc.ID, tree.Clone(doc.DraftContent), s.now().UTC())
	if err != nil {
		log.Printf("[Publish] Failed to publish %s: %v", doc.Slug, err)
		return nil, err
	}
	log.Printf("[Publish] Published %s version %d", doc.Slug, n)
	res := PublishResult{Version: n, URL: s.PublicURL(doc.Slug, n)}
	for _, fn := range s.onPublish {
		fn(doc, res)
	}
	return &res, nil
}

// PublicURL returns the public address of one version of a document.
func (s *Service) PublicURL(slug string, version int) string {
	return fmt.Sprintf("%s/p/%s?v=%d", s.baseURL, url.PathEscape(slug), version)
}

// ListVersions lists the published versions of a document in order.
func (s *Service) ListVersions(ctx context.Context, id string) ([]*store.Version, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, id)
}

// GetVersion loads one published version.
func (s *Service) GetVersion(ctx context.Context, id string, version int) (*store.Version, error) {
	if version < 1 {
		return nil, blockpress.Errorf(blockpress.CodeInvalidInput, "lifecycle.get_version", "version must be at least 1, got %d", version)
	}
	return s.store.GetVersion(ctx, id, version)
}

// Latest loads the most recent published version.
func (s *Service) Latest(ctx context.Context, id string) (*store.Version, error) {
	return s.store.LatestVersion(ctx, id)
}

// Published resolves a public address: the document with the given slug and
// either the requested version or, when version is 0, the latest one.
func (s *Service) Published(ctx context.Context, slug string, version int) (*store.Document, *store.Version, error) {
	doc, err := s.store.GetDocumentBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	var v *store.Version
	if version == 0 {
		v, err = s.store.LatestVersion(ctx, doc.ID)
	} else {
		v, err = s.GetVersion(ctx, doc.ID, version)
	}
	if err != nil {
		return nil, nil, err
	}
	return doc, v, nil
}

// State reports the lifecycle state of a document.
func (s *Service) State(ctx context.Context, id string) (State, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := s.store.LatestVersion(ctx, id); err == nil {
		return StatePublished, nil
	} else if blockpress.CodeOf(err) != blockpress.CodeNotFound {
		return "", err
	}
	if doc.DraftContent != nil {
		return StateDrafting, nil
	}
	return StateNoDraft, nil
}
