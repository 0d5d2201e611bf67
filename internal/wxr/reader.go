package wxr

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// MaxSupportedVersion is the newest export format version this reader fully
// understands. Newer documents are read anyway; the version mismatch is a
// warning, not a failure.
const MaxSupportedVersion = "1.2"

// Entity is one top-level entity block pulled from the document.
type Entity struct {
	Kind string // KindAuthor, KindTerm, or KindItem
	Node Node
}

// Reader pulls top-level entity blocks out of an export document without
// loading the whole document into memory. Document-level scalars are
// collected as they stream past and are complete once the first entity has
// been returned (entities always follow the channel header).
type Reader struct {
	src       io.Closer
	dec       *xml.Decoder
	site      SiteInfo
	sawEntity bool
}

// Open opens the export document at path. Failure to open is the one fatal
// error of a run; everything after is per-entity.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open source: %w", err)
	}
	return newReader(f, f), nil
}

// NewReader reads an export document from r.
func NewReader(r io.Reader) *Reader {
	return newReader(r, io.NopCloser(r))
}

func newReader(r io.Reader, c io.Closer) *Reader {
	dec := xml.NewDecoder(r)
	// Exports routinely carry HTML entities outside CDATA. External entity
	// resolution stays off: encoding/xml never fetches external DTDs.
	dec.Entity = xml.HTMLEntity
	return &Reader{src: c, dec: dec}
}

// Site returns the document-level scalars seen so far. Complete after the
// first call to Next.
func (r *Reader) Site() SiteInfo { return r.site }

// Next returns the next top-level entity block, or io.EOF at end of document.
// A decode error mid-document is returned as-is; the caller decides whether
// to abandon the stream.
func (r *Reader) Next() (*Entity, error) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading document: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "author":
			return r.decodeEntity(KindAuthor, se)
		case "category", "tag", "term":
			return r.decodeEntity(KindTerm, se)
		case "item":
			return r.decodeEntity(KindItem, se)
		default:
			if !r.sawEntity {
				if err := r.channelScalar(se); err != nil {
					return nil, err
				}
			}
			// Unknown top-level tags are ignored; richer future documents
			// must keep streaming.
		}
	}
}

func (r *Reader) decodeEntity(kind string, se xml.StartElement) (*Entity, error) {
	r.sawEntity = true
	e := &Entity{Kind: kind}
	if err := e.Node.UnmarshalXML(r.dec, se); err != nil {
		return nil, fmt.Errorf("decoding %s block: %w", kind, err)
	}
	return e, nil
}

// channelScalar captures a document-level scalar. Container tags (rss,
// channel) have no text of interest and fall through untouched.
func (r *Reader) channelScalar(se xml.StartElement) error {
	var dst *string
	switch se.Name.Local {
	case "title":
		dst = &r.site.Title
	case "link":
		dst = &r.site.Link
	case "description":
		dst = &r.site.Description
	case "generator":
		dst = &r.site.Generator
	case "wxr_version":
		dst = &r.site.Version
	case "base_site_url":
		dst = &r.site.BaseSiteURL
	case "base_blog_url":
		dst = &r.site.BaseBlogURL
	default:
		return nil
	}

	var s string
	if err := r.dec.DecodeElement(&s, &se); err != nil {
		return fmt.Errorf("reading channel scalar %s: %w", se.Name.Local, err)
	}
	if *dst == "" {
		*dst = s
	}
	return nil
}

// Close releases the underlying source.
func (r *Reader) Close() error { return r.src.Close() }
