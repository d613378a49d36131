// Package merge implements the content-fill deep merge used when AI
// output must be folded into a document without discarding any
// user-authored content.
//
// The rule everywhere is "non-empty original wins": a generated value
// only fills slots the original left empty.
package merge

import (
	"strings"

	"github.com/planweave/bidoc/doctree"
)

// Fill merges a generated tree into an original one and returns the
// merged tree. Neither input is mutated.
//
//   - Scalars: a non-empty original scalar wins over the generated one.
//   - Lists: merged position by position; generated elements fill
//     positions beyond the original's length.
//   - Maps: merged key by key with the same rule; generated keys absent
//     from the original are added after the original's keys.
func Fill(original, generated *doctree.Value) *doctree.Value {
	if generated.IsNull() {
		return original.Clone()
	}
	if original.IsNull() {
		return generated.Clone()
	}

	switch {
	case original.Kind == doctree.Scalar && generated.Kind == doctree.Scalar:
		if strings.TrimSpace(original.Str) != "" {
			return original.Clone()
		}
		return generated.Clone()

	case original.Kind == doctree.List && generated.Kind == doctree.List:
		merged := doctree.NewList()
		n := original.Len()
		if generated.Len() > n {
			n = generated.Len()
		}
		for i := 0; i < n; i++ {
			merged.Append(Fill(original.At(i), generated.At(i)))
		}
		return merged

	case original.Kind == doctree.Map && generated.Kind == doctree.Map:
		merged := doctree.NewMap()
		for _, k := range original.Keys() {
			merged.SetField(k, Fill(original.Field(k), generated.Field(k)))
		}
		for _, k := range generated.Keys() {
			if original.Field(k) == nil {
				merged.SetField(k, generated.Field(k).Clone())
			}
		}
		return merged

	default:
		// Kind mismatch: the user-authored shape wins outright.
		return original.Clone()
	}
}
