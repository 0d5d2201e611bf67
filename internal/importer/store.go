package importer

import (
	"context"
	"io"
	"time"
)

// ContentStore is the target-store collaborator. Every method is fallible;
// the importer treats a rejection as terminal for that one entity and keeps
// going. Implementations assign new identities on creation.
type ContentStore interface {
	CreatePost(p *NewPost) (int64, error)
	CreateComment(c *NewComment) (int64, error)
	CreateTerm(t *NewTerm) (int64, error)
	CreateUser(u *NewUser) (int64, error)

	AttachPostMeta(postID int64, key, value string) error
	AttachCommentMeta(commentID int64, key, value string) error
	DeletePostMeta(postID int64, key string) error
	DeleteCommentMeta(commentID int64, key string) error

	// AddPostTerms attaches terms to a post, ignoring pairs already present.
	AddPostTerms(postID int64, termIDs []int64) error

	UpdatePostParent(postID, parentID int64) error
	UpdatePostAuthor(postID, authorID int64) error
	UpdatePostContent(postID int64, content string) error
	UpdateTermParent(termID, parentID int64) error
	UpdateCommentParent(commentID, parentID int64) error
	UpdateCommentAuthor(commentID, userID int64) error
	UpdateMetaValue(metaID int64, value string) error

	// Prefill queries: one pass over the store, natural key to new id.
	ExistingPostGUIDs() (map[string]int64, error)
	ExistingComments() (map[string]int64, error)
	ExistingTerms() (map[string]int64, error)
	ExistingUsers() (map[string]int64, error)

	// Point lookups for lazy mode. A zero id means not found.
	FindPostIDByGUID(guid string) (int64, error)
	FindCommentIDByFingerprint(fp string) (int64, error)
	FindTermID(taxonomy, slug string) (int64, error)
	FindUserIDByLogin(login string) (int64, error)

	// Aggressive URL rewrite surface.
	AllPostIDs() ([]int64, error)
	PostContent(postID int64) (string, error)
	EnclosureMeta() ([]MetaRow, error)

	// Run records.
	CreateImportRun(operation, parameters string, startedAt time.Time) (int64, error)
	FinishImportRun(id int64, status string, finishedAt time.Time) error
	ListImportRuns(limit int) ([]ImportRun, error)

	Close() error
}

// NewPost is a post ready for storage: all reference fields either resolved
// to new identities or blanked to their neutral defaults.
type NewPost struct {
	Title         string
	Slug          string
	Type          string
	Status        string
	GUID          string
	Content       string
	Excerpt       string
	ParentID      int64
	AuthorID      int64
	Date          time.Time
	DateGMT       time.Time
	MenuOrder     int
	Sticky        bool
	CommentStatus string
	PingStatus    string
	Password      string
	URL           string // stored location, attachments only
}

// NewComment is a comment ready for storage.
type NewComment struct {
	PostID       int64
	ParentID     int64
	AuthorName   string
	AuthorEmail  string
	AuthorURL    string
	AuthorIP     string
	AuthorUserID int64
	Date         time.Time
	DateGMT      time.Time
	Content      string
	Approved     string
	Type         string
}

// NewTerm is a term ready for storage.
type NewTerm struct {
	Taxonomy    string
	Slug        string
	Name        string
	Description string
	ParentID    int64
}

// NewUser is a user ready for storage.
type NewUser struct {
	Login       string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
}

// MetaRow is a stored meta entry, as returned by scan queries.
type MetaRow struct {
	ID     int64
	PostID int64
	Key    string
	Value  string
}

// ImportRun is one recorded run of a mutating command.
type ImportRun struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// MediaStore persists fetched attachment content and yields the stored
// object's public URL.
type MediaStore interface {
	// Put stores size bytes under key. Storing the same key twice is safe.
	Put(key string, r io.Reader, size int64) (url string, err error)

	// ValidateSetup verifies the backend is reachable and writable.
	ValidateSetup() error
}

// FetchResult is one successfully retrieved remote attachment.
type FetchResult struct {
	Body        []byte
	Size        int64
	ContentType string
}

// Fetcher retrieves remote attachment content. Implementations enforce the
// configured size cap and verify the downloaded byte count against any
// declared content length.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
