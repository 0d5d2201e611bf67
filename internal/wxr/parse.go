package wxr

import (
	"strings"
	"time"
)

// dateLayout is the timestamp format used throughout export documents.
const dateLayout = "2006-01-02 15:04:05"

// ParseAuthor turns an author block into a User. Login is required: it is the
// natural key everything else hangs off.
func ParseAuthor(n *Node) (*User, error) {
	login := n.ChildText("author_login")
	if login == "" {
		return nil, malformedf("author block without login")
	}
	return &User{
		ID:          n.ChildInt("author_id"),
		Login:       login,
		Email:       n.ChildText("author_email"),
		DisplayName: n.ChildText("author_display_name"),
		FirstName:   n.ChildText("author_first_name"),
		LastName:    n.ChildText("author_last_name"),
	}, nil
}

// ParseTerm turns a category, tag, or generic term block into a Term.
// Records without a slug are dropped as malformed: the slug is half of the
// natural key.
func ParseTerm(n *Node) (*Term, error) {
	t := &Term{ID: n.ChildInt("term_id")}

	switch n.Name {
	case "category":
		t.Taxonomy = "category"
		t.Slug = n.ChildText("category_nicename")
		t.Name = n.ChildText("cat_name")
		t.Description = n.ChildText("category_description")
		t.ParentSlug = n.ChildText("category_parent")
	case "tag":
		t.Taxonomy = "post_tag"
		t.Slug = n.ChildText("tag_slug")
		t.Name = n.ChildText("tag_name")
		t.Description = n.ChildText("tag_description")
	case "term":
		t.Taxonomy = n.ChildText("term_taxonomy")
		t.Slug = n.ChildText("term_slug")
		t.Name = n.ChildText("term_name")
		t.Description = n.ChildText("term_description")
		t.ParentSlug = n.ChildText("term_parent")
	default:
		return nil, malformedf("unknown term block %q", n.Name)
	}

	if t.Slug == "" {
		return nil, malformedf("%s block without slug", n.Name)
	}
	if t.Taxonomy == "" {
		return nil, malformedf("term block without taxonomy")
	}
	if t.Name == "" {
		t.Name = t.Slug
	}
	return t, nil
}

// ParseItem turns an item block into a Post. Items in a non-importable state
// yield ErrUnsupportedState; structurally broken items yield ErrMalformed.
// Unknown child tags are ignored.
func ParseItem(n *Node) (*Post, error) {
	status := n.ChildText("status")
	if status == "auto-draft" {
		return nil, unsupportedf("auto-draft item")
	}
	if status == "" {
		status = "publish"
	}

	p := &Post{
		ID:            n.ChildInt("post_id"),
		Title:         n.ChildText("title"),
		Slug:          n.ChildText("post_name"),
		Link:          n.ChildText("link"),
		GUID:          n.ChildText("guid"),
		Type:          n.ChildText("post_type"),
		Status:        status,
		ParentID:      n.ChildInt("post_parent"),
		AuthorLogin:   n.ChildText("creator"),
		Date:          parseDate(n.ChildText("post_date")),
		DateGMT:       parseDate(n.ChildText("post_date_gmt")),
		Password:      n.ChildText("post_password"),
		MenuOrder:     int(n.ChildInt("menu_order")),
		Sticky:        n.ChildText("is_sticky") == "1",
		CommentStatus: n.ChildText("comment_status"),
		PingStatus:    n.ChildText("ping_status"),
		AttachmentURL: n.ChildText("attachment_url"),
	}
	if p.Type == "" {
		p.Type = TypePost
	}
	if p.GUID == "" {
		return nil, malformedf("item %q without guid", p.Title)
	}
	encoded := 0
	for i := range n.Children {
		c := &n.Children[i]
		switch c.Name {
		case "encoded":
			// content:encoded and excerpt:encoded share the local name
			// "encoded"; the namespace tells them apart. Document order is
			// the fallback for documents without namespace declarations.
			switch {
			case strings.Contains(c.Space, "excerpt"):
				p.Excerpt = c.Text
			case strings.Contains(c.Space, "content"):
				p.Content = c.Text
			case encoded == 0:
				p.Content = c.Text
			case encoded == 1:
				p.Excerpt = c.Text
			}
			encoded++
		case "category":
			if ref, ok := parseTermRef(c); ok {
				p.Terms = append(p.Terms, ref)
			}
		case "postmeta":
			if m, ok := parseMeta(c); ok {
				p.Meta = append(p.Meta, m)
			}
		case "comment":
			p.Comments = append(p.Comments, parseComment(c))
		}
	}

	return p, nil
}

// parseTermRef reads an inline term reference off an item. References without
// a usable slug are dropped.
func parseTermRef(n *Node) (TermRef, bool) {
	ref := TermRef{
		Taxonomy: n.Attr("domain"),
		Slug:     n.Attr("nicename"),
		Name:     strings.TrimSpace(n.Text),
	}
	if ref.Taxonomy == "" {
		ref.Taxonomy = "category"
	}
	if ref.Slug == "" {
		return TermRef{}, false
	}
	return ref, true
}

// parseMeta reads a postmeta/commentmeta block. Entries missing the key are
// silently omitted; this is expected noise, not an error.
func parseMeta(n *Node) (Meta, bool) {
	key := n.ChildText("meta_key")
	if key == "" {
		return Meta{}, false
	}
	raw := ""
	if c := n.Child("meta_value"); c != nil {
		raw = c.Text
	}
	return Meta{Key: key, Value: NormalizeMetaValue(raw)}, true
}

func parseComment(n *Node) Comment {
	c := Comment{
		ID:           n.ChildInt("comment_id"),
		ParentID:     n.ChildInt("comment_parent"),
		AuthorName:   n.ChildText("comment_author"),
		AuthorEmail:  n.ChildText("comment_author_email"),
		AuthorURL:    n.ChildText("comment_author_url"),
		AuthorIP:     n.ChildText("comment_author_IP"),
		AuthorUserID: n.ChildInt("comment_user_id"),
		Date:         parseDate(n.ChildText("comment_date")),
		DateGMT:      parseDate(n.ChildText("comment_date_gmt")),
		Approved:     n.ChildText("comment_approved"),
		Type:         n.ChildText("comment_type"),
	}
	if cc := n.Child("comment_content"); cc != nil {
		c.Content = cc.Text
	}
	for i := range n.Children {
		if n.Children[i].Name == "commentmeta" {
			if m, ok := parseMeta(&n.Children[i]); ok {
				c.Meta = append(c.Meta, m)
			}
		}
	}
	return c
}

// parseDate parses an export timestamp. The zero placeholder
// "0000-00-00 00:00:00" and anything unparseable come back as the zero time.
func parseDate(s string) time.Time {
	if s == "" || strings.HasPrefix(s, "0000-") {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
