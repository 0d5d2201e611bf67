package wxr

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Summary is the result of the preliminary dry-run pass: entity counts by
// type plus the document-level scalars. Producing it performs no store
// mutations.
type Summary struct {
	Site      SiteInfo
	Posts     int
	Pages     int
	Media     int
	MenuItems int
	Others    int
	Comments  int
	Terms     int
	Users     int
	Warnings  []string
}

// Inspect streams the whole document once and tallies it. Malformed entities
// count toward their kind's bucket where the kind is still recognizable and
// are otherwise ignored; the dry run mirrors the real run's tolerance.
func Inspect(path string) (*Summary, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return summarize(r)
}

func summarize(r *Reader) (*Summary, error) {
	s := &Summary{}
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch e.Kind {
		case KindAuthor:
			s.Users++
		case KindTerm:
			s.Terms++
		case KindItem:
			switch e.Node.ChildText("post_type") {
			case TypePage:
				s.Pages++
			case TypeAttachment:
				s.Media++
			case TypeMenuItem:
				s.MenuItems++
			case TypePost, "":
				s.Posts++
			default:
				s.Others++
			}
			for i := range e.Node.Children {
				if e.Node.Children[i].Name == "comment" {
					s.Comments++
				}
			}
		}
	}

	s.Site = r.Site()
	if versionNewer(s.Site.Version, MaxSupportedVersion) {
		s.Warnings = append(s.Warnings, fmt.Sprintf(
			"document format version %s is newer than supported %s; unknown fields will be ignored",
			s.Site.Version, MaxSupportedVersion))
	}
	return s, nil
}

// versionNewer reports whether dotted version a is newer than b, comparing
// numeric components so "1.10" outranks "1.2". Non-numeric components count
// as zero.
func versionNewer(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av > bv
		}
	}
	return false
}
