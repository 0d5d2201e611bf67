package importer

import "strconv"

// resolveDeferred is the second pass: it runs over everything flagged
// "requires remapping" against the now-complete registry. The pass repeats
// until it stops making progress so that chains of mutually-referencing
// entities settle regardless of document order, capped at MaxDeferredPasses.
// Whatever is still unresolved afterwards is a permanent, logged gap; its
// sentinel meta stays behind for audit.
func (im *Importer) resolveDeferred() {
	for pass := 0; pass < im.opts.MaxDeferredPasses; pass++ {
		progress := false
		if im.resolvePostRefs() {
			progress = true
		}
		if im.resolveCommentRefs() {
			progress = true
		}
		if im.resolveTermParents() {
			progress = true
		}
		if !progress {
			break
		}
	}
	im.reportGaps()
}

func (im *Importer) resolvePostRefs() bool {
	progress := false
	pairs := im.rewritePairs()

	for _, pp := range im.pendingPosts {
		if pp.oldParent != 0 {
			if pid, ok := im.reg.MapOld(Posts, pp.oldParent); ok {
				if err := im.store.UpdatePostParent(pp.id, pid); err != nil {
					im.logger.Error("parent update rejected", "post", pp.id, "error", err)
				} else {
					im.clearPostSentinel(pp.id, metaPendingParent)
					pp.oldParent = 0
					im.stats.Remapped++
					progress = true
				}
			}
		}

		if pp.authorSlug != "" {
			if uid, ok := im.lookupUserByLogin(pp.authorSlug); ok {
				if err := im.store.UpdatePostAuthor(pp.id, uid); err != nil {
					im.logger.Error("author update rejected", "post", pp.id, "error", err)
				} else {
					im.clearPostSentinel(pp.id, metaPendingAuthor)
					pp.authorSlug = ""
					im.stats.Remapped++
					progress = true
				}
			}
		}

		if len(pp.terms) > 0 && im.resolveDeferredTerms(pp) {
			progress = true
		}

		if pp.menuObject != nil {
			var id int64
			var ok bool
			if pp.menuObject.kind == "taxonomy" {
				id, ok = im.reg.MapOld(Terms, pp.menuObject.oldID)
			} else {
				id, ok = im.reg.MapOld(Posts, pp.menuObject.oldID)
			}
			if ok {
				im.replacePostMeta(pp.id, metaMenuItemObjectID, strconv.FormatInt(id, 10))
				im.clearPostSentinel(pp.id, metaPendingMenuObject)
				pp.menuObject = nil
				im.stats.Remapped++
				progress = true
			}
		}

		if pp.menuParent != 0 {
			if id, ok := im.reg.MapOld(Posts, pp.menuParent); ok {
				im.replacePostMeta(pp.id, metaMenuItemParent, strconv.FormatInt(id, 10))
				im.clearPostSentinel(pp.id, metaPendingMenuParent)
				pp.menuParent = 0
				im.stats.Remapped++
				progress = true
			}
		}

		if pp.needsURL {
			// The rewrite map is complete once the stream ends, so one
			// application settles the flag.
			if changed, err := im.rewriteStoredPost(pp.id, pairs); err != nil {
				im.logger.Error("url rewrite rejected", "post", pp.id, "error", err)
			} else {
				if changed {
					im.stats.RewrittenPosts++
				}
				im.clearPostSentinel(pp.id, metaNeedsURLRemap)
				pp.needsURL = false
				progress = true
			}
		}
	}
	return progress
}

// resolveDeferredTerms attaches the terms that have become known since the
// post was stored. Sentinel rows for this key are rewritten wholesale to
// match what is still outstanding.
func (im *Importer) resolveDeferredTerms(pp *pendingPost) bool {
	var attach []int64
	remaining := pp.terms[:0]
	for _, ref := range pp.terms {
		if id, ok := im.lookupTerm(ref.Taxonomy, ref.Slug); ok {
			attach = append(attach, id)
		} else {
			remaining = append(remaining, ref)
		}
	}
	if len(attach) == 0 {
		return false
	}

	if err := im.store.AddPostTerms(pp.id, attach); err != nil {
		im.logger.Error("deferred term attach rejected", "post", pp.id, "error", err)
		return false
	}
	pp.terms = remaining
	im.stats.Remapped += len(attach)

	im.clearPostSentinel(pp.id, metaPendingTerm)
	for _, ref := range remaining {
		if err := im.store.AttachPostMeta(pp.id, metaPendingTerm, ref.Taxonomy+":"+ref.Slug); err != nil {
			im.logger.Warn("sentinel meta rejected", "post", pp.id, "error", err)
		}
	}
	return true
}

func (im *Importer) resolveCommentRefs() bool {
	progress := false
	for _, pc := range im.pendingComments {
		if pc.oldParent != 0 {
			if pid, ok := im.reg.MapOld(Comments, pc.oldParent); ok {
				if err := im.store.UpdateCommentParent(pc.id, pid); err != nil {
					im.logger.Error("comment parent update rejected", "comment", pc.id, "error", err)
				} else {
					im.clearCommentSentinel(pc.id, metaPendingParent)
					pc.oldParent = 0
					im.stats.Remapped++
					progress = true
				}
			}
		}
		if pc.oldAuthor != 0 {
			if uid, ok := im.reg.MapOld(Users, pc.oldAuthor); ok {
				if err := im.store.UpdateCommentAuthor(pc.id, uid); err != nil {
					im.logger.Error("comment author update rejected", "comment", pc.id, "error", err)
				} else {
					im.clearCommentSentinel(pc.id, metaPendingAuthor)
					pc.oldAuthor = 0
					im.stats.Remapped++
					progress = true
				}
			}
		}
	}
	return progress
}

// resolveTermParents is the deferred leg of term-parent remapping, symmetric
// with post and comment parents.
func (im *Importer) resolveTermParents() bool {
	progress := false
	for _, pt := range im.pendingTerms {
		if pt.parentSlug == "" {
			continue
		}
		if pid, ok := im.lookupTerm(pt.taxonomy, pt.parentSlug); ok {
			if err := im.store.UpdateTermParent(pt.id, pid); err != nil {
				im.logger.Error("term parent update rejected", "term", pt.id, "error", err)
			} else {
				pt.parentSlug = ""
				im.stats.Remapped++
				progress = true
			}
		}
	}
	return progress
}

func (im *Importer) reportGaps() {
	for _, pp := range im.pendingPosts {
		if pp.oldParent != 0 {
			im.gap("post parent", "post", pp.id, strconv.FormatInt(pp.oldParent, 10))
		}
		if pp.authorSlug != "" {
			im.gap("post author", "post", pp.id, pp.authorSlug)
		}
		for _, ref := range pp.terms {
			im.gap("post term", "post", pp.id, ref.Taxonomy+":"+ref.Slug)
		}
		if pp.menuObject != nil {
			im.gap("menu item target", "post", pp.id, strconv.FormatInt(pp.menuObject.oldID, 10))
		}
		if pp.menuParent != 0 {
			im.gap("menu item parent", "post", pp.id, strconv.FormatInt(pp.menuParent, 10))
		}
	}
	for _, pc := range im.pendingComments {
		if pc.oldParent != 0 {
			im.gap("comment parent", "comment", pc.id, strconv.FormatInt(pc.oldParent, 10))
		}
		if pc.oldAuthor != 0 {
			im.gap("comment author", "comment", pc.id, strconv.FormatInt(pc.oldAuthor, 10))
		}
	}
	for _, pt := range im.pendingTerms {
		if pt.parentSlug != "" {
			im.gap("term parent", "term", pt.id, pt.taxonomy+":"+pt.parentSlug)
		}
	}
}

func (im *Importer) gap(what, kind string, id int64, ref string) {
	im.stats.Gaps++
	im.logger.Warn("reference left unresolved", "what", what, kind, id, "ref", ref)
}

func (im *Importer) clearPostSentinel(postID int64, key string) {
	if err := im.store.DeletePostMeta(postID, key); err != nil {
		im.logger.Warn("clearing sentinel failed", "post", postID, "key", key, "error", err)
	}
}

func (im *Importer) clearCommentSentinel(commentID int64, key string) {
	if err := im.store.DeleteCommentMeta(commentID, key); err != nil {
		im.logger.Warn("clearing sentinel failed", "comment", commentID, "key", key, "error", err)
	}
}

// replacePostMeta swaps a meta entry's value by delete-and-reattach.
func (im *Importer) replacePostMeta(postID int64, key, value string) {
	if err := im.store.DeletePostMeta(postID, key); err != nil {
		im.logger.Warn("meta replace failed", "post", postID, "key", key, "error", err)
		return
	}
	if err := im.store.AttachPostMeta(postID, key, value); err != nil {
		im.logger.Warn("meta replace failed", "post", postID, "key", key, "error", err)
	}
}
