package importer

// Options controls one import run.
type Options struct {
	// Prefill selects, per entity type, whether existing natural keys are
	// bulk-loaded before the run (higher memory, no per-candidate queries)
	// or looked up on demand and cached. Either way the duplicate-detection
	// outcome is identical.
	PrefillPosts    bool
	PrefillComments bool
	PrefillTerms    bool

	// FetchAttachments retrieves remote attachment content into the media
	// store. When off, attachment items are skipped entirely.
	FetchAttachments bool

	// UpdateAttachmentGUIDs rewrites an attachment's guid to its stored URL
	// instead of keeping the source guid.
	UpdateAttachmentGUIDs bool

	// AggressiveURLSearch rewrites every stored post body and enclosure meta
	// value after the import, not just posts flagged by the content
	// heuristic. Strictly a superset of the targeted rewrite.
	AggressiveURLSearch bool

	// DefaultAuthor is the login to assign when a post's author cannot be
	// resolved. Empty leaves such posts unassigned.
	DefaultAuthor string

	// MaxDeferredPasses caps the deferred-resolution fixed point.
	MaxDeferredPasses int
}

// DefaultOptions returns the documented defaults: prefill everything, leave
// attachments alone, no aggressive rewrite.
func DefaultOptions() Options {
	return Options{
		PrefillPosts:      true,
		PrefillComments:   true,
		PrefillTerms:      true,
		MaxDeferredPasses: 5,
	}
}

// Stats summarizes a run: per-entity outcomes an operator can audit.
type Stats struct {
	Posts    int // created, including pages, attachments, menu items
	Comments int
	Terms    int
	Users    int

	SkippedDuplicates  int
	SkippedMalformed   int
	SkippedUnsupported int
	StoreFailures      int
	FetchFailures      int

	Remapped       int // deferred references resolved
	Gaps           int // references still unresolved after the deferred pass
	RewrittenPosts int // bodies changed by the URL rewrite pass
}

// Hooks are the orchestrator's extension points. Nil fields are skipped.
type Hooks struct {
	// BeforeStore runs just before an entity is created in the store.
	BeforeStore func(kind string, record any)
	// AfterStore runs after successful creation, with the new identity.
	AfterStore func(kind string, record any, newID int64)
	// OnSkip runs whenever an entity is skipped, with the reason.
	OnSkip func(kind string, record any, reason error)
}

func (h Hooks) beforeStore(kind string, record any) {
	if h.BeforeStore != nil {
		h.BeforeStore(kind, record)
	}
}

func (h Hooks) afterStore(kind string, record any, newID int64) {
	if h.AfterStore != nil {
		h.AfterStore(kind, record, newID)
	}
}

func (h Hooks) onSkip(kind string, record any, reason error) {
	if h.OnSkip != nil {
		h.OnSkip(kind, record, reason)
	}
}
