package doctree

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Field paths
// ---------------------------------------------------------------------------

// Segment is one step of a field path: either a map key or a list index.
type Segment struct {
	// Key is the map key (when index is false).
	Key string
	// Index is the list position (when index is true).
	Index int

	index bool
}

// KeySegment returns a map-key path segment.
func KeySegment(key string) Segment { return Segment{Key: key} }

// IndexSegment returns a list-index path segment.
func IndexSegment(i int) Segment { return Segment{Index: i, index: true} }

// IsIndex reports whether the segment addresses a list element.
func (s Segment) IsIndex() bool { return s.index }

func (s Segment) String() string {
	if s.index {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Key
}

// Path is an ordered sequence of segments uniquely addressing one leaf.
//
// The string form joins map keys with "." and renders list indices in
// brackets, so the two segment kinds never collide:
//
//	causes[0].description
//	objectives[2].activities[0].title
type Path []Segment

// String renders the canonical path notation.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.index {
			fmt.Fprintf(&b, "[%d]", seg.Index)
		} else {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// Section returns the first map key of the path, the top-level document
// section the leaf belongs to. Empty if the path starts with an index.
func (p Path) Section() string {
	if len(p) == 0 || p[0].index {
		return ""
	}
	return p[0].Key
}

// LastKey returns the final map key of the path, skipping over trailing
// list indices, so causes[0].title and title classify the same way.
func (p Path) LastKey() string {
	for i := len(p) - 1; i >= 0; i-- {
		if !p[i].index {
			return p[i].Key
		}
	}
	return ""
}

// Child appends a map-key segment, returning a new path.
func (p Path) Child(key string) Path {
	return append(append(Path{}, p...), KeySegment(key))
}

// Elem appends a list-index segment, returning a new path.
func (p Path) Elem(i int) Path {
	return append(append(Path{}, p...), IndexSegment(i))
}

// ParsePath parses the canonical notation back into a Path.
// It is the inverse of String for every path the indexer emits.
func ParsePath(s string) (Path, error) {
	var p Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated index", s)
			}
			n, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: bad index %q", s, s[i+1:i+end])
			}
			p = append(p, IndexSegment(n))
			i += end + 1
		case '.':
			if i == 0 || len(p) == 0 {
				return nil, fmt.Errorf("path %q: leading separator", s)
			}
			i++
			if i >= len(s) {
				return nil, fmt.Errorf("path %q: trailing separator", s)
			}
		default:
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' {
				end++
			}
			p = append(p, KeySegment(s[i:end]))
			i = end
		}
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Get / Set
// ---------------------------------------------------------------------------

// Get resolves the path inside root and returns the addressed value,
// or nil if any step is missing.
func Get(root *Value, p Path) *Value {
	cur := root
	for _, seg := range p {
		if cur == nil {
			return nil
		}
		if seg.index {
			cur = cur.At(seg.Index)
		} else {
			cur = cur.Field(seg.Key)
		}
	}
	return cur
}

// GetString returns the scalar text at path, or "" if the slot is
// missing or not a scalar.
func GetString(root *Value, p Path) string {
	v := Get(root, p)
	if v == nil || v.Kind != Scalar {
		return ""
	}
	return v.Str
}

// Set writes val at path inside root, creating intermediate containers
// on demand. The container shape (map vs list) is inferred from the
// next path segment. Root itself must already be a map or list matching
// the first segment; a null root is shaped in place.
func Set(root *Value, p Path, val *Value) error {
	if len(p) == 0 {
		return fmt.Errorf("set: empty path")
	}
	cur := root
	for i, seg := range p {
		last := i == len(p)-1
		if err := shapeFor(cur, seg); err != nil {
			return fmt.Errorf("set %s: %w", p, err)
		}
		if seg.index {
			cur.growTo(seg.Index)
			if last {
				cur.Items[seg.Index] = val
				return nil
			}
			next := cur.Items[seg.Index]
			if next.IsNull() || !containerFor(next, p[i+1]) {
				next = newContainer(p[i+1])
				cur.Items[seg.Index] = next
			}
			cur = next
		} else {
			if last {
				cur.SetField(seg.Key, val)
				return nil
			}
			next := cur.Field(seg.Key)
			if next == nil || next.IsNull() || !containerFor(next, p[i+1]) {
				next = newContainer(p[i+1])
				cur.SetField(seg.Key, next)
			}
			cur = next
		}
	}
	return nil
}

// SetString writes a scalar at path, creating containers as needed.
func SetString(root *Value, p Path, s string) error {
	return Set(root, p, NewScalar(s))
}

// shapeFor turns a null node into the container kind seg requires, and
// rejects a node of the wrong kind.
func shapeFor(v *Value, seg Segment) error {
	want := Map
	if seg.index {
		want = List
	}
	if v.Kind == Null {
		v.Kind = want
		if want == Map && v.fields == nil {
			v.fields = make(map[string]*Value)
		}
		return nil
	}
	if v.Kind != want {
		return fmt.Errorf("segment %v: node is %s, want %s", seg, v.Kind, want)
	}
	return nil
}

// containerFor reports whether v already has the container kind that
// the given segment needs.
func containerFor(v *Value, seg Segment) bool {
	if seg.index {
		return v.Kind == List
	}
	return v.Kind == Map
}

// newContainer allocates the container kind the given segment needs.
func newContainer(seg Segment) *Value {
	if seg.index {
		return NewList()
	}
	return NewMap()
}
