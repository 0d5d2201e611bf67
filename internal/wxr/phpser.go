package wxr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Meta values in export documents are frequently PHP-serialized. They must be
// decoded before storage, but a value that merely looks serialized and is not
// must survive byte-for-byte, so decoding failures fall back to the raw
// string rather than erroring.

var errNotSerialized = errors.New("not a serialized value")

// NormalizeMetaValue returns the storable form of a raw meta value: decoded
// scalars as plain strings, decoded arrays re-encoded as JSON, and anything
// undecodable unchanged.
func NormalizeMetaValue(raw string) string {
	v, err := Unserialize(raw)
	if err != nil {
		return raw
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return raw
		}
		return string(b)
	}
}

// Unserialize decodes a PHP-serialized scalar or array. Objects and anything
// with trailing garbage are rejected; callers treat rejection as "store the
// raw value".
func Unserialize(s string) (any, error) {
	d := &phpDecoder{src: s}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.src) {
		return nil, fmt.Errorf("%w: trailing data at offset %d", errNotSerialized, d.pos)
	}
	return v, nil
}

type phpDecoder struct {
	src string
	pos int
}

func (d *phpDecoder) value() (any, error) {
	if d.pos >= len(d.src) {
		return nil, errNotSerialized
	}
	tag := d.src[d.pos]
	switch tag {
	case 'N':
		if err := d.expect("N;"); err != nil {
			return nil, err
		}
		return nil, nil
	case 'b':
		body, err := d.scalar('b')
		if err != nil {
			return nil, err
		}
		return body == "1", nil
	case 'i':
		body, err := d.scalar('i')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad integer %q", errNotSerialized, body)
		}
		return n, nil
	case 'd':
		body, err := d.scalar('d')
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad float %q", errNotSerialized, body)
		}
		return f, nil
	case 's':
		return d.str()
	case 'a':
		return d.array()
	default:
		return nil, fmt.Errorf("%w: unsupported tag %q", errNotSerialized, tag)
	}
}

// scalar reads `<tag>:<body>;` and returns body.
func (d *phpDecoder) scalar(tag byte) (string, error) {
	if err := d.expect(string(tag) + ":"); err != nil {
		return "", err
	}
	end := strings.IndexByte(d.src[d.pos:], ';')
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated %c", errNotSerialized, tag)
	}
	body := d.src[d.pos : d.pos+end]
	d.pos += end + 1
	return body, nil
}

// str reads `s:<len>:"<bytes>";` where len counts bytes, not runes.
func (d *phpDecoder) str() (string, error) {
	if err := d.expect("s:"); err != nil {
		return "", err
	}
	n, err := d.length()
	if err != nil {
		return "", err
	}
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	if d.pos+n > len(d.src) {
		return "", fmt.Errorf("%w: string length %d past end", errNotSerialized, n)
	}
	body := d.src[d.pos : d.pos+n]
	d.pos += n
	if err := d.expect(`";`); err != nil {
		return "", err
	}
	return body, nil
}

// array reads `a:<count>:{<key><value>...}`. PHP arrays are ordered maps with
// int or string keys; both become JSON-object string keys here.
func (d *phpDecoder) array() (map[string]any, error) {
	if err := d.expect("a:"); err != nil {
		return nil, err
	}
	count, err := d.length()
	if err != nil {
		return nil, err
	}
	if err := d.expect("{"); err != nil {
		return nil, err
	}

	out := make(map[string]any, count)
	for i := 0; i < count; i++ {
		k, err := d.value()
		if err != nil {
			return nil, err
		}
		var key string
		switch kk := k.(type) {
		case string:
			key = kk
		case int64:
			key = strconv.FormatInt(kk, 10)
		default:
			return nil, fmt.Errorf("%w: array key %T", errNotSerialized, k)
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	if err := d.expect("}"); err != nil {
		return nil, err
	}
	return out, nil
}

// length reads `<digits>:`.
func (d *phpDecoder) length() (int, error) {
	end := strings.IndexByte(d.src[d.pos:], ':')
	if end < 0 {
		return 0, fmt.Errorf("%w: missing length", errNotSerialized)
	}
	n, err := strconv.Atoi(d.src[d.pos : d.pos+end])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad length", errNotSerialized)
	}
	d.pos += end + 1
	return n, nil
}

func (d *phpDecoder) expect(lit string) error {
	if !strings.HasPrefix(d.src[d.pos:], lit) {
		return fmt.Errorf("%w: expected %q at offset %d", errNotSerialized, lit, d.pos)
	}
	d.pos += len(lit)
	return nil
}
