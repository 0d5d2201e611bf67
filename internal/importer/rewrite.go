package importer

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// aggressiveRewriteLimit bounds the concurrent store updates of the
// aggressive pass. The registry is read-only by then and each post is
// independent, so this is the one stretch safe to parallelize.
const aggressiveRewriteLimit = 4

type urlPair struct {
	oldURL string
	newURL string
}

// rewritePairs returns the collected remap pairs ordered longest original
// first, so a short URL that is a prefix of a longer one never partially
// corrupts the longer match.
func (im *Importer) rewritePairs() []urlPair {
	pairs := make([]urlPair, 0, len(im.urlMap))
	for o, n := range im.urlMap {
		pairs = append(pairs, urlPair{oldURL: o, newURL: n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].oldURL) != len(pairs[j].oldURL) {
			return len(pairs[i].oldURL) > len(pairs[j].oldURL)
		}
		return pairs[i].oldURL < pairs[j].oldURL
	})
	return pairs
}

// rewriteContent applies every pair by direct string substitution.
func rewriteContent(content string, pairs []urlPair) string {
	for _, p := range pairs {
		content = strings.ReplaceAll(content, p.oldURL, p.newURL)
	}
	return content
}

// rewriteStoredPost rewrites one stored body, reporting whether it changed.
func (im *Importer) rewriteStoredPost(postID int64, pairs []urlPair) (bool, error) {
	if len(pairs) == 0 {
		return false, nil
	}
	content, err := im.store.PostContent(postID)
	if err != nil {
		return false, err
	}
	rewritten := rewriteContent(content, pairs)
	if rewritten == content {
		return false, nil
	}
	if err := im.store.UpdatePostContent(postID, rewritten); err != nil {
		return false, err
	}
	return true, nil
}

// aggressiveRewrite is the opt-in superset of the targeted rewrite: every
// stored post body and every enclosure meta value gets the substitution,
// regardless of the content heuristic.
func (im *Importer) aggressiveRewrite(ctx context.Context) error {
	pairs := im.rewritePairs()
	if len(pairs) == 0 {
		return nil
	}

	ids, err := im.store.AllPostIDs()
	if err != nil {
		return err
	}

	var rewritten int64
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(aggressiveRewriteLimit)
	for _, id := range ids {
		g.Go(func() error {
			changed, err := im.rewriteStoredPost(id, pairs)
			if err != nil {
				return err
			}
			if changed {
				atomic.AddInt64(&rewritten, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	im.stats.RewrittenPosts += int(rewritten)

	rows, err := im.store.EnclosureMeta()
	if err != nil {
		return err
	}
	for _, row := range rows {
		value := rewriteContent(row.Value, pairs)
		if value == row.Value {
			continue
		}
		if err := im.store.UpdateMetaValue(row.ID, value); err != nil {
			im.logger.Error("enclosure rewrite rejected", "meta", row.ID, "error", err)
		}
	}

	im.logger.Info("aggressive url rewrite complete", "posts", rewritten, "pairs", len(pairs))
	return nil
}
