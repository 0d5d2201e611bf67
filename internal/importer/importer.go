// Package importer is the control core of wxr-go: a single ordered pass over
// the export document that dedupes entities by natural key, remaps old
// identities to new ones, stores records, and defers references it cannot
// resolve yet to a second pass over the completed registry.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"wxr-go/internal/wxr"
)

// Sentinel meta keys carried by stored entities that still need remapping.
// The deferred pass deletes each one as its reference resolves; whatever is
// left afterwards marks a permanent gap an operator can query for.
const (
	metaPendingParent     = "_import_parent"
	metaPendingAuthor     = "_import_author_slug"
	metaPendingTerm       = "_import_term"
	metaPendingMenuObject = "_import_menu_item_object"
	metaPendingMenuParent = "_import_menu_item_parent"
	metaNeedsURLRemap     = "_import_url_remap"
)

// Menu-item meta keys from the source document.
const (
	metaMenuItemType     = "_menu_item_type"
	metaMenuItemObjectID = "_menu_item_object_id"
	metaMenuItemParent   = "_menu_item_menu_item_parent"
)

// uploadRefPattern is the deliberately permissive content heuristic: bodies
// matching it look like they reference locally uploaded files and will need
// the URL rewrite once attachments exist.
var uploadRefPattern = regexp.MustCompile(`(?i)class="[^"]*\b(wp-image-\d+|attachment)|wp-content/uploads/`)

// Importer replays one export document into the content store. Not safe for
// reuse; create one per run.
type Importer struct {
	store   ContentStore
	media   MediaStore
	fetcher Fetcher
	logger  Logger
	clock   Clock
	reg     *Registry
	opts    Options
	hooks   Hooks
	stats   Stats

	pendingPosts    []*pendingPost
	pendingComments []*pendingComment
	pendingTerms    []*pendingTerm
	urlMap          map[string]string

	defaultAuthor  int64
	triedDefAuthor bool
}

type menuRef struct {
	kind  string // "taxonomy" or "post_type"
	oldID int64
}

// pendingPost tracks what is still unresolved on a stored post. Zeroed
// fields are resolved; the entry is dropped once everything is.
type pendingPost struct {
	id         int64
	oldParent  int64
	authorSlug string
	needsURL   bool
	terms      []wxr.TermRef
	menuObject *menuRef
	menuParent int64
}

type pendingComment struct {
	id        int64
	oldParent int64
	oldAuthor int64
}

type pendingTerm struct {
	id         int64
	taxonomy   string
	parentSlug string
}

// New creates an Importer with the provided dependencies. media and fetcher
// may be nil when Options.FetchAttachments is off.
func New(store ContentStore, media MediaStore, fetcher Fetcher, logger Logger, clock Clock, opts Options, hooks Hooks) *Importer {
	if opts.MaxDeferredPasses <= 0 {
		opts.MaxDeferredPasses = 1
	}
	return &Importer{
		store:   store,
		media:   media,
		fetcher: fetcher,
		logger:  logger,
		clock:   clock,
		reg:     NewRegistry(),
		opts:    opts,
		hooks:   hooks,
		urlMap:  make(map[string]string),
	}
}

// Registry exposes the run's identity registry, mainly for tests and hooks.
func (im *Importer) Registry() *Registry { return im.reg }

// Run consumes the reader to the end, then executes the deferred resolution
// pass and the URL rewrite pass. Entities are processed strictly in document
// order; a malformed entity is skipped, never fatal. The returned error is
// non-nil only for run-level failures (unreadable stream, cancelled context).
func (im *Importer) Run(ctx context.Context, r *wxr.Reader) (*Stats, error) {
	if err := im.prefill(ctx); err != nil {
		return nil, fmt.Errorf("prefilling registry: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			// Whole-run cancellation just stops pulling from the reader;
			// entities already stored stay stored.
			return &im.stats, err
		}

		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &im.stats, fmt.Errorf("reading entity stream: %w", err)
		}

		switch e.Kind {
		case wxr.KindAuthor:
			im.processAuthor(&e.Node)
		case wxr.KindTerm:
			im.processTerm(&e.Node)
		case wxr.KindItem:
			im.processItem(ctx, &e.Node)
		}
	}

	im.resolveDeferred()
	if im.opts.AggressiveURLSearch {
		if err := im.aggressiveRewrite(ctx); err != nil {
			return &im.stats, fmt.Errorf("aggressive url rewrite: %w", err)
		}
	}

	im.logger.Info("import complete",
		"posts", im.stats.Posts, "comments", im.stats.Comments,
		"terms", im.stats.Terms, "users", im.stats.Users,
		"duplicates", im.stats.SkippedDuplicates, "gaps", im.stats.Gaps)
	return &im.stats, nil
}

// prefill bulk-loads existing natural keys for the entity types configured
// for it. The queries are independent reads, so they run concurrently; the
// registry is not consulted until all of them land.
func (im *Importer) prefill(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	load := func(t EntityType, query func() (map[string]int64, error)) {
		g.Go(func() error {
			keys, err := query()
			if err != nil {
				return fmt.Errorf("prefilling %ss: %w", t, err)
			}
			im.reg.SeedKeys(t, keys)
			return nil
		})
	}

	if im.opts.PrefillPosts {
		load(Posts, im.store.ExistingPostGUIDs)
	}
	if im.opts.PrefillComments {
		load(Comments, im.store.ExistingComments)
	}
	if im.opts.PrefillTerms {
		load(Terms, im.store.ExistingTerms)
	}
	// Users are few; always prefilled.
	load(Users, im.store.ExistingUsers)

	return g.Wait()
}

// Lazy lookups: registry first, then the store (once per distinct key) when
// that type was not prefilled. Prefilled absence is authoritative.

func (im *Importer) lookupPostByGUID(guid string) (int64, bool) {
	return im.lookupKey(Posts, guid, im.opts.PrefillPosts, func() (int64, error) {
		return im.store.FindPostIDByGUID(guid)
	})
}

func (im *Importer) lookupCommentByFingerprint(fp string) (int64, bool) {
	return im.lookupKey(Comments, fp, im.opts.PrefillComments, func() (int64, error) {
		return im.store.FindCommentIDByFingerprint(fp)
	})
}

func (im *Importer) lookupTerm(taxonomy, slug string) (int64, bool) {
	return im.lookupKey(Terms, TermKey(taxonomy, slug), im.opts.PrefillTerms, func() (int64, error) {
		return im.store.FindTermID(taxonomy, slug)
	})
}

func (im *Importer) lookupUserByLogin(login string) (int64, bool) {
	// Users are always prefilled.
	return im.lookupKey(Users, login, true, nil)
}

func (im *Importer) lookupKey(t EntityType, key string, prefilled bool, query func() (int64, error)) (int64, bool) {
	if id, ok := im.reg.ByKey(t, key); ok {
		return id, true
	}
	if prefilled || im.reg.Missing(t, key) {
		return 0, false
	}
	id, err := query()
	if err != nil {
		im.logger.Error("existence lookup failed", "type", string(t), "key", key, "error", err)
		return 0, false
	}
	if id == 0 {
		im.reg.MarkMissing(t, key)
		return 0, false
	}
	im.reg.RecordKey(t, key, id)
	return id, true
}

// defaultAuthorID resolves the configured default author once per run.
func (im *Importer) defaultAuthorID() int64 {
	if im.triedDefAuthor {
		return im.defaultAuthor
	}
	im.triedDefAuthor = true
	if im.opts.DefaultAuthor == "" {
		return 0
	}
	id, ok := im.lookupUserByLogin(im.opts.DefaultAuthor)
	if !ok {
		im.logger.Warn("default author not found", "login", im.opts.DefaultAuthor)
		return 0
	}
	im.defaultAuthor = id
	return id
}

func (im *Importer) processAuthor(n *wxr.Node) {
	u, err := wxr.ParseAuthor(n)
	if err != nil {
		im.skip("user", nil, err)
		return
	}

	// Numeric old id first, then the login natural key. The login wins: a
	// colliding numeric id from another source system must not override it.
	if id, ok := im.reg.MapOld(Users, u.ID); ok {
		im.reg.RecordKey(Users, u.Login, id)
		return
	}
	if id, ok := im.lookupUserByLogin(u.Login); ok {
		im.reg.RecordMapping(Users, u.ID, id)
		im.stats.SkippedDuplicates++
		return
	}

	rec := &NewUser{
		Login:       u.Login,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
	}
	im.hooks.beforeStore("user", u)
	id, err := im.store.CreateUser(rec)
	if err != nil {
		im.storeFailed("user", u.Login, err)
		return
	}
	im.reg.RecordMapping(Users, u.ID, id)
	im.reg.RecordKey(Users, u.Login, id)
	im.stats.Users++
	im.hooks.afterStore("user", u, id)
	im.logger.Debug("user created", "login", u.Login, "id", id)
}

func (im *Importer) processTerm(n *wxr.Node) {
	t, err := wxr.ParseTerm(n)
	if err != nil {
		im.skip("term", nil, err)
		return
	}

	// Duplicate natural keys across the document collapse to one target
	// term; every old id involved maps to it.
	if id, ok := im.lookupTerm(t.Taxonomy, t.Slug); ok {
		im.reg.RecordMapping(Terms, t.ID, id)
		im.stats.SkippedDuplicates++
		return
	}

	rec := &NewTerm{
		Taxonomy:    t.Taxonomy,
		Slug:        t.Slug,
		Name:        t.Name,
		Description: t.Description,
	}
	pending := ""
	if t.ParentSlug != "" {
		if pid, ok := im.lookupTerm(t.Taxonomy, t.ParentSlug); ok {
			rec.ParentID = pid
		} else {
			pending = t.ParentSlug
		}
	}

	im.hooks.beforeStore("term", t)
	id, err := im.store.CreateTerm(rec)
	if err != nil {
		im.storeFailed("term", t.Slug, err)
		return
	}
	im.reg.RecordMapping(Terms, t.ID, id)
	im.reg.RecordKey(Terms, TermKey(t.Taxonomy, t.Slug), id)
	im.stats.Terms++
	im.hooks.afterStore("term", t, id)

	if pending != "" {
		im.pendingTerms = append(im.pendingTerms, &pendingTerm{
			id:         id,
			taxonomy:   t.Taxonomy,
			parentSlug: pending,
		})
	}
	im.logger.Debug("term created", "taxonomy", t.Taxonomy, "slug", t.Slug, "id", id)
}

func (im *Importer) processItem(ctx context.Context, n *wxr.Node) {
	p, err := wxr.ParseItem(n)
	if err != nil {
		im.skip("post", nil, err)
		return
	}

	// Duplicate check by guid: numeric ids are importer-local and collide
	// across repeated or partial imports, the guid does not.
	if id, ok := im.lookupPostByGUID(p.GUID); ok {
		im.reg.RecordMapping(Posts, p.ID, id)
		im.stats.SkippedDuplicates++
		im.logger.Debug("post already exists", "guid", p.GUID, "id", id)
		// New comments under an existing post still attach to it.
		im.processComments(p, id, true)
		return
	}

	if p.Type == wxr.TypeAttachment && !im.opts.FetchAttachments {
		im.skip("post", p, errors.New("attachment fetching disabled"))
		return
	}

	rec := &NewPost{
		Title:         p.Title,
		Slug:          p.Slug,
		Type:          p.Type,
		Status:        p.Status,
		GUID:          p.GUID,
		Content:       p.Content,
		Excerpt:       p.Excerpt,
		Date:          p.Date,
		DateGMT:       p.DateGMT,
		MenuOrder:     p.MenuOrder,
		Sticky:        p.Sticky,
		CommentStatus: p.CommentStatus,
		PingStatus:    p.PingStatus,
		Password:      p.Password,
	}
	pending := &pendingPost{}

	// Parent post: resolve now or blank to no-parent and defer.
	if p.ParentID != 0 {
		if pid, ok := im.reg.MapOld(Posts, p.ParentID); ok {
			rec.ParentID = pid
		} else {
			pending.oldParent = p.ParentID
		}
	}

	// Author by login-slug. Slugs normally appear in the same document, so
	// a miss here is usually non-recoverable; the post is left unassigned
	// (or given the default author) but still re-checked once in the
	// deferred pass in case the author block failed to store in time.
	if p.AuthorLogin != "" {
		if uid, ok := im.lookupUserByLogin(p.AuthorLogin); ok {
			rec.AuthorID = uid
		} else if def := im.defaultAuthorID(); def != 0 {
			rec.AuthorID = def
		} else {
			pending.authorSlug = p.AuthorLogin
		}
	}

	// Content heuristic: a body that looks like it references uploads will
	// need the URL rewrite once attachments exist.
	if uploadRefPattern.MatchString(p.Content) {
		pending.needsURL = true
	}

	// Attachments: retrieve the remote content before creating the post so
	// the stored record points at the new location.
	if p.Type == wxr.TypeAttachment {
		newURL, err := im.fetchAttachment(ctx, p)
		if err != nil {
			im.stats.FetchFailures++
			im.skip("post", p, fmt.Errorf("attachment fetch failed: %w", err))
			return
		}
		rec.URL = newURL
		if im.opts.UpdateAttachmentGUIDs {
			rec.GUID = newURL
		}
		im.recordURLPair(p.AttachmentURL, newURL)
	}

	im.hooks.beforeStore("post", p)
	id, err := im.store.CreatePost(rec)
	if err != nil {
		im.storeFailed("post", p.GUID, err)
		return
	}
	pending.id = id
	im.reg.RecordMapping(Posts, p.ID, id)
	im.reg.RecordKey(Posts, p.GUID, id)
	im.stats.Posts++
	im.hooks.afterStore("post", p, id)

	im.attachMeta(p, id, pending)
	im.attachTerms(p, id, pending)
	im.writeSentinels(id, pending)

	if pending.deferred() {
		im.pendingPosts = append(im.pendingPosts, pending)
	}

	im.processComments(p, id, false)
	im.logger.Debug("post created", "type", p.Type, "guid", p.GUID, "id", id)
}

func (pp *pendingPost) deferred() bool {
	return pp.oldParent != 0 || pp.authorSlug != "" || pp.needsURL ||
		len(pp.terms) > 0 || pp.menuObject != nil || pp.menuParent != 0
}

// attachMeta stores the item's meta list. Menu-item reference meta gets
// rewritten to new identities where possible and deferred where not.
func (im *Importer) attachMeta(p *wxr.Post, postID int64, pending *pendingPost) {
	menuType := "" // value of _menu_item_type, seen before the object id in practice
	if p.Type == wxr.TypeMenuItem {
		for _, m := range p.Meta {
			if m.Key == metaMenuItemType {
				menuType = m.Value
				break
			}
		}
	}

	for _, m := range p.Meta {
		value := m.Value
		switch {
		case p.Type == wxr.TypeMenuItem && m.Key == metaMenuItemObjectID:
			value = im.remapMenuObject(menuType, m.Value, pending)
		case p.Type == wxr.TypeMenuItem && m.Key == metaMenuItemParent:
			value = im.remapMenuParent(m.Value, pending)
		}
		if err := im.store.AttachPostMeta(postID, m.Key, value); err != nil {
			im.logger.Warn("meta rejected", "post", postID, "key", m.Key, "error", err)
		}
	}
}

// remapMenuObject resolves a menu item's target object id. Custom items are
// self-referential and always resolvable; taxonomy and post targets defer
// when the referenced entity is not yet mapped.
func (im *Importer) remapMenuObject(menuType, raw string, pending *pendingPost) string {
	oldID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || oldID == 0 {
		return raw
	}
	switch menuType {
	case "taxonomy":
		if id, ok := im.reg.MapOld(Terms, oldID); ok {
			return strconv.FormatInt(id, 10)
		}
		pending.menuObject = &menuRef{kind: "taxonomy", oldID: oldID}
	case "post_type":
		if id, ok := im.reg.MapOld(Posts, oldID); ok {
			return strconv.FormatInt(id, 10)
		}
		pending.menuObject = &menuRef{kind: "post_type", oldID: oldID}
	}
	return raw
}

func (im *Importer) remapMenuParent(raw string, pending *pendingPost) string {
	oldID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || oldID == 0 {
		return raw
	}
	if id, ok := im.reg.MapOld(Posts, oldID); ok {
		return strconv.FormatInt(id, 10)
	}
	pending.menuParent = oldID
	return raw
}

// attachTerms is two-tier: terms already mapped attach at creation time,
// the rest wait for the deferred pass (terms appear earlier or later in the
// document independent of the posts that use them).
func (im *Importer) attachTerms(p *wxr.Post, postID int64, pending *pendingPost) {
	var now []int64
	for _, ref := range p.Terms {
		if id, ok := im.lookupTerm(ref.Taxonomy, ref.Slug); ok {
			now = append(now, id)
		} else {
			pending.terms = append(pending.terms, ref)
		}
	}
	if len(now) > 0 {
		if err := im.store.AddPostTerms(postID, now); err != nil {
			im.logger.Warn("attaching terms failed", "post", postID, "error", err)
		}
	}
}

// writeSentinels marks the stored post as requiring remapping so pending
// work survives in the store itself, not just in this process.
func (im *Importer) writeSentinels(postID int64, pending *pendingPost) {
	put := func(key, value string) {
		if err := im.store.AttachPostMeta(postID, key, value); err != nil {
			im.logger.Warn("sentinel meta rejected", "post", postID, "key", key, "error", err)
		}
	}
	if pending.oldParent != 0 {
		put(metaPendingParent, strconv.FormatInt(pending.oldParent, 10))
	}
	if pending.authorSlug != "" {
		put(metaPendingAuthor, pending.authorSlug)
	}
	if pending.needsURL {
		put(metaNeedsURLRemap, "1")
	}
	for _, ref := range pending.terms {
		put(metaPendingTerm, ref.Taxonomy+":"+ref.Slug)
	}
	if pending.menuObject != nil {
		put(metaPendingMenuObject, pending.menuObject.kind+":"+strconv.FormatInt(pending.menuObject.oldID, 10))
	}
	if pending.menuParent != 0 {
		put(metaPendingMenuParent, strconv.FormatInt(pending.menuParent, 10))
	}
}

// processComments stores a post's comments in old-id order so that parents
// inside the same post usually resolve immediately. postPreexisted gates the
// duplicate check: fingerprints are only meaningful against a post that was
// already in the store before this run.
func (im *Importer) processComments(p *wxr.Post, postID int64, postPreexisted bool) {
	comments := make([]wxr.Comment, len(p.Comments))
	copy(comments, p.Comments)
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })

	for i := range comments {
		c := &comments[i]

		if postPreexisted {
			fp := CommentFingerprint(c.AuthorName, c.Date)
			if id, ok := im.lookupCommentByFingerprint(fp); ok {
				im.reg.RecordMapping(Comments, c.ID, id)
				im.stats.SkippedDuplicates++
				continue
			}
		}

		rec := &NewComment{
			PostID:      postID,
			AuthorName:  c.AuthorName,
			AuthorEmail: c.AuthorEmail,
			AuthorURL:   c.AuthorURL,
			AuthorIP:    c.AuthorIP,
			Date:        c.Date,
			DateGMT:     c.DateGMT,
			Content:     c.Content,
			Approved:    c.Approved,
			Type:        c.Type,
		}
		pending := &pendingComment{}

		if c.ParentID != 0 {
			if pid, ok := im.reg.MapOld(Comments, c.ParentID); ok {
				rec.ParentID = pid
			} else {
				pending.oldParent = c.ParentID
			}
		}
		if c.AuthorUserID != 0 {
			if uid, ok := im.reg.MapOld(Users, c.AuthorUserID); ok {
				rec.AuthorUserID = uid
			} else {
				pending.oldAuthor = c.AuthorUserID
			}
		}

		im.hooks.beforeStore("comment", c)
		id, err := im.store.CreateComment(rec)
		if err != nil {
			im.storeFailed("comment", strconv.FormatInt(c.ID, 10), err)
			continue
		}
		im.reg.RecordMapping(Comments, c.ID, id)
		im.reg.RecordKey(Comments, CommentFingerprint(c.AuthorName, c.Date), id)
		im.stats.Comments++
		im.hooks.afterStore("comment", c, id)

		for _, m := range c.Meta {
			if err := im.store.AttachCommentMeta(id, m.Key, m.Value); err != nil {
				im.logger.Warn("comment meta rejected", "comment", id, "key", m.Key, "error", err)
			}
		}

		if pending.oldParent != 0 || pending.oldAuthor != 0 {
			pending.id = id
			if pending.oldParent != 0 {
				if err := im.store.AttachCommentMeta(id, metaPendingParent, strconv.FormatInt(pending.oldParent, 10)); err != nil {
					im.logger.Warn("sentinel meta rejected", "comment", id, "error", err)
				}
			}
			if pending.oldAuthor != 0 {
				if err := im.store.AttachCommentMeta(id, metaPendingAuthor, strconv.FormatInt(pending.oldAuthor, 10)); err != nil {
					im.logger.Warn("sentinel meta rejected", "comment", id, "error", err)
				}
			}
			im.pendingComments = append(im.pendingComments, pending)
		}
	}
}

func (im *Importer) skip(kind string, record any, reason error) {
	switch {
	case errors.Is(reason, wxr.ErrUnsupportedState):
		im.stats.SkippedUnsupported++
		im.logger.Debug("entity skipped", "kind", kind, "reason", reason)
	case errors.Is(reason, wxr.ErrMalformed):
		im.stats.SkippedMalformed++
		im.logger.Warn("entity skipped", "kind", kind, "reason", reason)
	default:
		im.logger.Warn("entity skipped", "kind", kind, "reason", reason)
	}
	im.hooks.onSkip(kind, record, reason)
}

func (im *Importer) storeFailed(kind, key string, err error) {
	im.stats.StoreFailures++
	im.logger.Error("store rejected entity", "kind", kind, "key", key, "error", err)
}
