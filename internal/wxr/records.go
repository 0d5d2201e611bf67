// Package wxr reads WXR-style export documents: a streaming reader that
// surfaces one top-level entity at a time, and pure parsers that turn entity
// nodes into typed records.
package wxr

import "time"

// Entity kinds surfaced by Reader.Next.
const (
	KindAuthor = "author"
	KindTerm   = "term"
	KindItem   = "item"
)

// Post types recognized inside item blocks. Anything else is imported as a
// plain post of that type.
const (
	TypePost       = "post"
	TypePage       = "page"
	TypeAttachment = "attachment"
	TypeMenuItem   = "nav_menu_item"
)

// SiteInfo holds the document-level scalars that appear before the first
// entity block.
type SiteInfo struct {
	Title       string
	Link        string
	Description string
	Version     string
	Generator   string
	BaseSiteURL string
	BaseBlogURL string
}

// Meta is a single metadata entry attached to a post or comment. Value is the
// storable form: PHP-serialized values are decoded, with structured results
// re-encoded as JSON and scalars kept as plain strings.
type Meta struct {
	Key   string
	Value string
}

// TermRef is a post's reference to a term by natural key.
type TermRef struct {
	Taxonomy string
	Slug     string
	Name     string
}

// Post is one item block: a post, page, attachment, or menu item.
type Post struct {
	ID            int64 // source-side id; meaningless in the target store
	Title         string
	Slug          string
	Link          string
	GUID          string
	Type          string
	Status        string
	ParentID      int64 // 0 = no parent
	AuthorLogin   string
	Date          time.Time
	DateGMT       time.Time
	Content       string
	Excerpt       string
	Password      string
	MenuOrder     int
	Sticky        bool
	CommentStatus string
	PingStatus    string
	AttachmentURL string // only for Type == attachment
	Terms         []TermRef
	Meta          []Meta
	Comments      []Comment
}

// Comment is a comment nested inside an item block.
type Comment struct {
	ID           int64
	ParentID     int64 // 0 = top-level
	AuthorName   string
	AuthorEmail  string
	AuthorURL    string
	AuthorIP     string
	AuthorUserID int64 // 0 = anonymous
	Date         time.Time
	DateGMT      time.Time
	Content      string
	Approved     string
	Type         string
	Meta         []Meta
}

// Term is a taxonomy term from a category, tag, or generic term block.
// The export references a term's parent by slug within the same taxonomy,
// not by id.
type Term struct {
	ID          int64
	Taxonomy    string
	Slug        string
	Name        string
	Description string
	ParentSlug  string
}

// User is an author block. Login is the natural key; ID may be absent and may
// collide across source systems, so it never overrides the login.
type User struct {
	ID          int64
	Login       string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
}
