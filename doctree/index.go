package doctree

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ---------------------------------------------------------------------------
// Leaf enumeration
// ---------------------------------------------------------------------------

// Leaf is a single addressable scalar value inside a document, together
// with its path and content hash.
type Leaf struct {
	// Path addresses the leaf inside the document.
	Path Path
	// Value is the leaf text as found in the document.
	Value string
	// Hash is the content fingerprint of the trimmed text.
	Hash string
	// Tag carries the YAML scalar tag of a typed (non-string) leaf,
	// such as "!!int" or "!!bool". Empty for plain strings.
	Tag string
}

// Leaves walks the document depth-first and returns every non-empty
// scalar leaf in document order. Whitespace-only strings and explicit
// nulls are skipped; typed scalars (numbers, booleans) are emitted with
// their Tag set so they can be copied verbatim, never translated.
// Re-running Leaves on an unmutated tree yields an identical result.
func Leaves(root *Value) []Leaf {
	var out []Leaf
	collectLeaves(root, nil, &out)
	return out
}

func collectLeaves(v *Value, p Path, out *[]Leaf) {
	if v.IsNull() {
		return
	}
	switch v.Kind {
	case Scalar:
		if v.Tag == "!!null" {
			return
		}
		if v.Tag == "" && strings.TrimSpace(v.Str) == "" {
			return
		}
		*out = append(*out, Leaf{
			Path:  append(Path{}, p...),
			Value: v.Str,
			Hash:  HashText(v.Str),
			Tag:   v.Tag,
		})
	case List:
		for i, item := range v.Items {
			collectLeaves(item, append(p, IndexSegment(i)), out)
		}
	case Map:
		for _, k := range v.keys {
			collectLeaves(v.fields[k], append(p, KeySegment(k)), out)
		}
	}
}

// HashText returns the hex-encoded SHA-256 of the trimmed text.
// The hash is a pure function of the trimmed value: surrounding
// whitespace edits never count as content changes.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(s)))
	return hex.EncodeToString(sum[:])
}
