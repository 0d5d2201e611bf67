// Package database implements the content store over SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wxr-go/internal/database/migrations"
	"wxr-go/internal/importer"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements importer.ContentStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and migrates) a content store at path, which may be
// ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating content store: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for schema setup and connection configuration.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the store relies on. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return db, nil
}

// Creation

func (s *SQLiteStore) CreatePost(p *importer.NewPost) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO posts (guid, title, slug, type, status, content, excerpt,
			parent_id, author_id, created_at, created_at_gmt, menu_order,
			sticky, comment_status, ping_status, password, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GUID, p.Title, p.Slug, p.Type, p.Status, p.Content, p.Excerpt,
		p.ParentID, p.AuthorID, p.Date, p.DateGMT, p.MenuOrder,
		boolToInt(p.Sticky), p.CommentStatus, p.PingStatus, p.Password, p.URL)
	if err != nil {
		return 0, fmt.Errorf("inserting post: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) CreateComment(c *importer.NewComment) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO comments (post_id, parent_id, author_name, author_email,
			author_url, author_ip, author_user_id, content, approved, type,
			created_at, created_at_gmt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PostID, c.ParentID, c.AuthorName, c.AuthorEmail,
		c.AuthorURL, c.AuthorIP, c.AuthorUserID, c.Content, c.Approved, c.Type,
		c.Date, c.DateGMT)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) CreateTerm(t *importer.NewTerm) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO terms (taxonomy, slug, name, description, parent_id)
		VALUES (?, ?, ?, ?, ?)`,
		t.Taxonomy, t.Slug, t.Name, t.Description, t.ParentID)
	if err != nil {
		return 0, fmt.Errorf("inserting term: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) CreateUser(u *importer.NewUser) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO users (login, email, display_name, first_name, last_name)
		VALUES (?, ?, ?, ?, ?)`,
		u.Login, u.Email, u.DisplayName, u.FirstName, u.LastName)
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return res.LastInsertId()
}

// Meta

func (s *SQLiteStore) AttachPostMeta(postID int64, key, value string) error {
	_, err := s.db.Exec(`INSERT INTO post_meta (post_id, key, value) VALUES (?, ?, ?)`,
		postID, key, value)
	if err != nil {
		return fmt.Errorf("inserting post meta: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AttachCommentMeta(commentID int64, key, value string) error {
	_, err := s.db.Exec(`INSERT INTO comment_meta (comment_id, key, value) VALUES (?, ?, ?)`,
		commentID, key, value)
	if err != nil {
		return fmt.Errorf("inserting comment meta: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePostMeta(postID int64, key string) error {
	_, err := s.db.Exec(`DELETE FROM post_meta WHERE post_id = ? AND key = ?`, postID, key)
	if err != nil {
		return fmt.Errorf("deleting post meta: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCommentMeta(commentID int64, key string) error {
	_, err := s.db.Exec(`DELETE FROM comment_meta WHERE comment_id = ? AND key = ?`, commentID, key)
	if err != nil {
		return fmt.Errorf("deleting comment meta: %w", err)
	}
	return nil
}

// Terms on posts

func (s *SQLiteStore) AddPostTerms(postID int64, termIDs []int64) error {
	for _, termID := range termIDs {
		_, err := s.db.Exec(`INSERT OR IGNORE INTO post_terms (post_id, term_id) VALUES (?, ?)`,
			postID, termID)
		if err != nil {
			return fmt.Errorf("attaching term %d: %w", termID, err)
		}
	}
	return nil
}

// Updates

func (s *SQLiteStore) UpdatePostParent(postID, parentID int64) error {
	return s.update(`UPDATE posts SET parent_id = ? WHERE id = ?`, parentID, postID)
}

func (s *SQLiteStore) UpdatePostAuthor(postID, authorID int64) error {
	return s.update(`UPDATE posts SET author_id = ? WHERE id = ?`, authorID, postID)
}

func (s *SQLiteStore) UpdatePostContent(postID int64, content string) error {
	return s.update(`UPDATE posts SET content = ? WHERE id = ?`, content, postID)
}

func (s *SQLiteStore) UpdateTermParent(termID, parentID int64) error {
	return s.update(`UPDATE terms SET parent_id = ? WHERE id = ?`, parentID, termID)
}

func (s *SQLiteStore) UpdateCommentParent(commentID, parentID int64) error {
	return s.update(`UPDATE comments SET parent_id = ? WHERE id = ?`, parentID, commentID)
}

func (s *SQLiteStore) UpdateCommentAuthor(commentID, userID int64) error {
	return s.update(`UPDATE comments SET author_user_id = ? WHERE id = ?`, userID, commentID)
}

func (s *SQLiteStore) UpdateMetaValue(metaID int64, value string) error {
	return s.update(`UPDATE post_meta SET value = ? WHERE id = ?`, value, metaID)
}

func (s *SQLiteStore) update(query string, args ...any) error {
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("updating: %w", err)
	}
	return nil
}

// Prefill queries

func (s *SQLiteStore) ExistingPostGUIDs() (map[string]int64, error) {
	return s.keyMap(`SELECT guid, id FROM posts`)
}

func (s *SQLiteStore) ExistingComments() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT id, author_name, created_at FROM comments`)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var author string
		var created time.Time
		if err := rows.Scan(&id, &author, &created); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		out[importer.CommentFingerprint(author, created)] = id
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ExistingTerms() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT id, taxonomy, slug FROM terms`)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var taxonomy, slug string
		if err := rows.Scan(&id, &taxonomy, &slug); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		out[importer.TermKey(taxonomy, slug)] = id
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ExistingUsers() (map[string]int64, error) {
	return s.keyMap(`SELECT login, id FROM users`)
}

func (s *SQLiteStore) keyMap(query string) (map[string]int64, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		out[key] = id
	}
	return out, rows.Err()
}

// Point lookups

func (s *SQLiteStore) FindPostIDByGUID(guid string) (int64, error) {
	return s.findID(`SELECT id FROM posts WHERE guid = ?`, guid)
}

// FindCommentIDByFingerprint matches on the author half of the fingerprint in
// SQL and the timestamp half in Go, since the fingerprint format is the
// registry's, not the schema's.
func (s *SQLiteStore) FindCommentIDByFingerprint(fp string) (int64, error) {
	author, _, ok := strings.Cut(fp, "\x00")
	if !ok {
		return 0, nil
	}
	rows, err := s.db.Query(`SELECT id, created_at FROM comments WHERE author_name = ?`, author)
	if err != nil {
		return 0, fmt.Errorf("querying comments by author: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var created time.Time
		if err := rows.Scan(&id, &created); err != nil {
			return 0, fmt.Errorf("scanning comment: %w", err)
		}
		if importer.CommentFingerprint(author, created) == fp {
			return id, nil
		}
	}
	return 0, rows.Err()
}

func (s *SQLiteStore) FindTermID(taxonomy, slug string) (int64, error) {
	return s.findID(`SELECT id FROM terms WHERE taxonomy = ? AND slug = ?`, taxonomy, slug)
}

func (s *SQLiteStore) FindUserIDByLogin(login string) (int64, error) {
	return s.findID(`SELECT id FROM users WHERE login = ?`, login)
}

func (s *SQLiteStore) findID(query string, args ...any) (int64, error) {
	var id int64
	err := s.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("looking up id: %w", err)
	}
	return id, nil
}

// Aggressive rewrite surface

func (s *SQLiteStore) AllPostIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying post ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) PostContent(postID int64) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM posts WHERE id = ?`, postID).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("reading post content: %w", err)
	}
	return content, nil
}

func (s *SQLiteStore) EnclosureMeta() ([]importer.MetaRow, error) {
	rows, err := s.db.Query(`SELECT id, post_id, key, value FROM post_meta WHERE key = 'enclosure'`)
	if err != nil {
		return nil, fmt.Errorf("querying enclosure meta: %w", err)
	}
	defer rows.Close()

	var out []importer.MetaRow
	for rows.Next() {
		var row importer.MetaRow
		if err := rows.Scan(&row.ID, &row.PostID, &row.Key, &row.Value); err != nil {
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Audit queries. Not part of the importer's store interface; these back the
// read-only surface for verifying resolved references and finding leftover
// sentinel meta after a run.

func (s *SQLiteStore) PostParentID(postID int64) (int64, error) {
	return s.findID(`SELECT parent_id FROM posts WHERE id = ?`, postID)
}

func (s *SQLiteStore) PostAuthorID(postID int64) (int64, error) {
	return s.findID(`SELECT author_id FROM posts WHERE id = ?`, postID)
}

func (s *SQLiteStore) CommentParentID(commentID int64) (int64, error) {
	return s.findID(`SELECT parent_id FROM comments WHERE id = ?`, commentID)
}

func (s *SQLiteStore) CommentAuthorID(commentID int64) (int64, error) {
	return s.findID(`SELECT author_user_id FROM comments WHERE id = ?`, commentID)
}

func (s *SQLiteStore) TermParentID(termID int64) (int64, error) {
	return s.findID(`SELECT parent_id FROM terms WHERE id = ?`, termID)
}

// PostMetaValues returns every value stored under one meta key of a post.
func (s *SQLiteStore) PostMetaValues(postID int64, key string) ([]string, error) {
	rows, err := s.db.Query(`SELECT value FROM post_meta WHERE post_id = ? AND key = ? ORDER BY id`, postID, key)
	if err != nil {
		return nil, fmt.Errorf("querying post meta: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning meta value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PostTermIDs returns the term ids attached to a post.
func (s *SQLiteStore) PostTermIDs(postID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT term_id FROM post_terms WHERE post_id = ? ORDER BY term_id`, postID)
	if err != nil {
		return nil, fmt.Errorf("querying post terms: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning term id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PostGUID returns the stored guid of a post.
func (s *SQLiteStore) PostGUID(postID int64) (string, error) {
	var guid string
	err := s.db.QueryRow(`SELECT guid FROM posts WHERE id = ?`, postID).Scan(&guid)
	if err != nil {
		return "", fmt.Errorf("reading post guid: %w", err)
	}
	return guid, nil
}

// Run records

func (s *SQLiteStore) CreateImportRun(operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO import_runs (operation, parameters, started_at) VALUES (?, ?, ?)`,
		operation, parameters, startedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting import run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) FinishImportRun(id int64, status string, finishedAt time.Time) error {
	return s.update(`UPDATE import_runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, finishedAt, id)
}

func (s *SQLiteStore) ListImportRuns(limit int) ([]importer.ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, operation, parameters, started_at, finished_at, status
		FROM import_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import runs: %w", err)
	}
	defer rows.Close()

	var out []importer.ImportRun
	for rows.Next() {
		var run importer.ImportRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Operation, &run.Parameters, &run.StartedAt, &finished, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning import run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time check that SQLiteStore implements the store interface.
var _ importer.ContentStore = (*SQLiteStore)(nil)
