package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"wxr-go/internal/wxr"
)

// fetchAttachment retrieves an attachment's remote content, stores it in the
// media store, and returns the stored URL. Failure skips that one attachment
// post; it never aborts the run.
func (im *Importer) fetchAttachment(ctx context.Context, p *wxr.Post) (string, error) {
	if p.AttachmentURL == "" {
		return "", errors.New("attachment item without a source url")
	}
	if im.fetcher == nil || im.media == nil {
		return "", errors.New("attachment fetching is not configured")
	}

	res, err := im.fetcher.Fetch(ctx, p.AttachmentURL)
	if err != nil {
		return "", err
	}

	date := p.Date
	if date.IsZero() {
		date = im.clock.Now()
	}
	key := mediaKey(p.AttachmentURL, date)
	stored, err := im.media.Put(key, bytes.NewReader(res.Body), res.Size)
	if err != nil {
		return "", fmt.Errorf("storing attachment: %w", err)
	}

	im.logger.Info("attachment fetched", "url", p.AttachmentURL, "stored", stored, "bytes", res.Size)
	return stored, nil
}

// mediaKey derives the storage key for an attachment. Source uploads keep
// their path below the uploads root so sibling references (thumbnails and
// the like) stay adjacent; anything else is filed under date.
func mediaKey(rawURL string, date time.Time) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}

	if i := strings.Index(name, "/uploads/"); i >= 0 {
		key := path.Clean(name[i+len("/uploads/"):])
		if key != "." && key != ".." && !strings.HasPrefix(key, "../") {
			return key
		}
	}

	base := path.Base(name)
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	return date.Format("2006/01") + "/" + base
}

// recordURLPair registers an old-to-new rewrite pair, plus the alternate
// scheme variant of the old URL: documents reference either scheme for the
// same resource.
func (im *Importer) recordURLPair(oldURL, newURL string) {
	if oldURL == "" || newURL == "" || oldURL == newURL {
		return
	}
	im.urlMap[oldURL] = newURL
	switch {
	case strings.HasPrefix(oldURL, "https://"):
		im.urlMap["http://"+strings.TrimPrefix(oldURL, "https://")] = newURL
	case strings.HasPrefix(oldURL, "http://"):
		im.urlMap["https://"+strings.TrimPrefix(oldURL, "http://")] = newURL
	}
}
