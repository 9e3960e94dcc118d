package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name string
	// numbered placeholders ($1) instead of ?
	numbered bool
	// publishLock runs inside the publish transaction before the max+1 read.
	publishLock string
	// isUnique reports a unique or primary key violation.
	isUnique func(error) bool
	// isBusy reports lock contention that a retry may resolve.
	isBusy func(error) bool
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		slug        TEXT NOT NULL UNIQUE,
		title       TEXT NOT NULL,
		draft       TEXT,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_versions (
		document_id TEXT NOT NULL REFERENCES documents(id),
		version     INTEGER NOT NULL,
		content     TEXT NOT NULL,
		created_at  BIGINT NOT NULL,
		PRIMARY KEY (document_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS components (
		component_key  TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL,
		category       TEXT NOT NULL,
		code           TEXT NOT NULL,
		schema_json    TEXT NOT NULL,
		defaults_json  TEXT NOT NULL,
		updated_at     BIGINT NOT NULL
	)`,
}

// sqlStore implements Store over database/sql. Timestamps are stored as
// UTC unix nanoseconds and trees as their JSON serialization.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: d}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s store: migrate: %w", d.name, err)
		}
	}
	return s, nil
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *sqlStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) internal(op string, err error) error {
	return blockpress.Wrap(blockpress.CodeInternal, op, fmt.Errorf("%s store: %w", s.dialect.name, err))
}

func encodeTime(t time.Time) int64 { return t.UTC().UnixNano() }

func decodeTime(n int64) time.Time { return time.Unix(0, n).UTC() }

func encodeTree(n *tree.Node) (sql.NullString, error) {
	if n == nil {
		return sql.NullString{}, nil
	}
	data, err := tree.Serialize(n)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeTree(s sql.NullString) (*tree.Node, error) {
	if !s.Valid {
		return nil, nil
	}
	return tree.Parse([]byte(s.String))
}

const documentColumns = `id, slug, title, draft, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		d                Document
		draft            sql.NullString
		created, updated int64
	)
	if err := row.Scan(&d.ID, &d.Slug, &d.Title, &draft, &created, &updated); err != nil {
		return nil, err
	}
	content, err := decodeTree(draft)
	if err != nil {
		return nil, fmt.Errorf("document %s: stored draft: %w", d.ID, err)
	}
	d.DraftContent = content
	d.CreatedAt = decodeTime(created)
	d.UpdatedAt = decodeTime(updated)
	return &d, nil
}

func (s *sqlStore) CreateDocument(ctx context.Context, doc *Document) error {
	const op = "store.create_document"
	draft, err := encodeTree(doc.DraftContent)
	if err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Slug, doc.Title, draft, encodeTime(doc.CreatedAt), encodeTime(doc.UpdatedAt))
	if err != nil {
		if s.dialect.isUnique(err) {
			return blockpress.Errorf(blockpress.CodeConflict, op, "slug %q is already in use", doc.Slug)
		}
		return s.internal(op, err)
	}
	return nil
}

func (s *sqlStore) getDocument(ctx context.Context, op, where string, arg any) (*Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+documentColumns+` FROM documents WHERE `+where+` = ?`), arg)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, op, "document %s %q not found", where, arg)
	}
	if err != nil {
		return nil, s.internal(op, err)
	}
	return d, nil
}

func (s *sqlStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocument(ctx, "store.get_document", "id", id)
}

func (s *sqlStore) GetDocumentBySlug(ctx context.Context, slug string) (*Document, error) {
	return s.getDocument(ctx, "store.get_document", "slug", slug)
}

func (s *sqlStore) UpdateDocument(ctx context.Context, doc *Document) error {
	const op = "store.update_document"
	draft, err := encodeTree(doc.DraftContent)
	if err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	res, err := s.exec(ctx,
		`UPDATE documents SET slug = ?, title = ?, draft = ?, updated_at = ? WHERE id = ?`,
		doc.Slug, doc.Title, draft, encodeTime(doc.UpdatedAt), doc.ID)
	if err != nil {
		if s.dialect.isUnique(err) {
			return blockpress.Errorf(blockpress.CodeConflict, op, "slug %q is already in use", doc.Slug)
		}
		return s.internal(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blockpress.Errorf(blockpress.CodeNotFound, op, "document %q not found", doc.ID)
	}
	return nil
}

func (s *sqlStore) ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error) {
	const op = "store.list_documents"
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if opts.Query != "" {
		query += ` WHERE LOWER(title) LIKE ? OR LOWER(slug) LIKE ?`
		like := "%" + strings.ToLower(opts.Query) + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY updated_at DESC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.internal(op, err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, s.internal(op, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.internal(op, err)
	}
	if opts.Limit <= 0 {
		out = page(out, opts)
	}
	return out, nil
}

func (s *sqlStore) PublishVersion(ctx context.Context, documentID string, content *tree.Node, at time.Time) (int, error) {
	const op = "store.publish"
	body, err := encodeTree(content)
	if err != nil {
		return 0, blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	if !body.Valid {
		return 0, blockpress.Errorf(blockpress.CodeNoContent, op, "nothing to publish")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.publishError(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if s.dialect.publishLock != "" {
		if _, err := tx.ExecContext(ctx, s.rebind(s.dialect.publishLock), documentID); err != nil {
			return 0, s.publishError(op, err)
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM documents WHERE id = ?`), documentID).Scan(&exists)
	if err != nil {
		return 0, s.publishError(op, err)
	}
	if exists == 0 {
		return 0, blockpress.Errorf(blockpress.CodeNotFound, op, "document %q not found", documentID)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions WHERE document_id = ?`),
		documentID).Scan(&next)
	if err != nil {
		return 0, s.publishError(op, err)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO document_versions (document_id, version, content, created_at) VALUES (?, ?, ?, ?)`),
		documentID, next, body.String, encodeTime(at))
	if err != nil {
		return 0, s.publishError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.publishError(op, err)
	}
	return next, nil
}

// publishError classifies failures inside the publish transaction.
// Collisions and lock contention are retryable.
func (s *sqlStore) publishError(op string, err error) error {
	if s.dialect.isUnique(err) || (s.dialect.isBusy != nil && s.dialect.isBusy(err)) {
		return blockpress.Wrap(blockpress.CodeCreateFailed, op, err).
			WithHint("another publish of this document finished first; retry")
	}
	return s.internal(op, err)
}

const versionColumns = `document_id, version, content, created_at`

func scanVersion(row scanner) (*Version, error) {
	var (
		v       Version
		content string
		created int64
	)
	if err := row.Scan(&v.DocumentID, &v.Version, &content, &created); err != nil {
		return nil, err
	}
	n, err := tree.Parse([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("version %s/%d: stored content: %w", v.DocumentID, v.Version, err)
	}
	v.Content = n
	v.CreatedAt = decodeTime(created)
	return &v, nil
}

func (s *sqlStore) GetVersion(ctx context.Context, documentID string, version int) (*Version, error) {
	const op = "store.get_version"
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+versionColumns+` FROM document_versions WHERE document_id = ? AND version = ?`),
		documentID, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, op, "version %d of document %q not found", version, documentID)
	}
	if err != nil {
		return nil, s.internal(op, err)
	}
	return v, nil
}

func (s *sqlStore) LatestVersion(ctx context.Context, documentID string) (*Version, error) {
	const op = "store.latest_version"
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+versionColumns+` FROM document_versions WHERE document_id = ? ORDER BY version DESC LIMIT 1`),
		documentID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, op, "document %q has no published version", documentID)
	}
	if err != nil {
		return nil, s.internal(op, err)
	}
	return v, nil
}

func (s *sqlStore) ListVersions(ctx context.Context, documentID string) ([]*Version, error) {
	const op = "store.list_versions"
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+versionColumns+` FROM document_versions WHERE document_id = ? ORDER BY version ASC`),
		documentID)
	if err != nil {
		return nil, s.internal(op, err)
	}
	defer rows.Close()

	out := []*Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, s.internal(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.internal(op, err)
	}
	return out, nil
}

func (s *sqlStore) SaveComponent(ctx context.Context, src registry.CustomSource) error {
	const op = "store.save_component"
	schemaJSON, err := json.Marshal(src.Schema)
	if err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	defaultsJSON, err := json.Marshal(tree.CopyProps(src.DefaultConfig))
	if err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, op, err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO components (component_key, name, description, category, code, schema_json, defaults_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (component_key) DO UPDATE SET
		   name = excluded.name, description = excluded.description, category = excluded.category,
		   code = excluded.code, schema_json = excluded.schema_json, defaults_json = excluded.defaults_json,
		   updated_at = excluded.updated_at`,
		src.Key, src.Name, src.Description, src.Category, src.Code,
		string(schemaJSON), string(defaultsJSON), encodeTime(src.UpdatedAt))
	if err != nil {
		return s.internal(op, err)
	}
	return nil
}

func (s *sqlStore) DeleteComponent(ctx context.Context, key string) error {
	const op = "store.delete_component"
	res, err := s.exec(ctx, `DELETE FROM components WHERE component_key = ?`, key)
	if err != nil {
		return s.internal(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blockpress.Errorf(blockpress.CodeNotFound, op, "component %q not found", key)
	}
	return nil
}

func (s *sqlStore) ListComponents(ctx context.Context) ([]registry.CustomSource, error) {
	const op = "store.list_components"
	rows, err := s.db.QueryContext(ctx,
		`SELECT component_key, name, description, category, code, schema_json, defaults_json, updated_at
		 FROM components ORDER BY component_key ASC`)
	if err != nil {
		return nil, s.internal(op, err)
	}
	defer rows.Close()

	var out []registry.CustomSource
	for rows.Next() {
		var (
			src                      registry.CustomSource
			schemaJSON, defaultsJSON string
			updated                  int64
		)
		if err := rows.Scan(&src.Key, &src.Name, &src.Description, &src.Category, &src.Code,
			&schemaJSON, &defaultsJSON, &updated); err != nil {
			return nil, s.internal(op, err)
		}
		if err := json.Unmarshal([]byte(schemaJSON), &src.Schema); err != nil {
			return nil, s.internal(op, fmt.Errorf("component %s: schema: %w", src.Key, err))
		}
		if err := json.Unmarshal([]byte(defaultsJSON), &src.DefaultConfig); err != nil {
			return nil, s.internal(op, fmt.Errorf("component %s: defaults: %w", src.Key, err))
		}
		src.UpdatedAt = decodeTime(updated)
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
