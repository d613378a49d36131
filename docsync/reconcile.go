package docsync

import (
	"fmt"
	"strings"

	"github.com/planweave/bidoc/doctree"
)

// ---------------------------------------------------------------------------
// Tree reconciliation
// ---------------------------------------------------------------------------

// writeTranslations writes every successfully translated leaf into the
// target document at its original path.
func writeTranslations(target *doctree.Value, byPath map[string]doctree.Leaf, translated map[string]string) (int, error) {
	n := 0
	for path, text := range translated {
		leaf, ok := byPath[path]
		if !ok {
			continue
		}
		if err := doctree.SetString(target, leaf.Path, text); err != nil {
			return n, fmt.Errorf("writing translation at %s: %w", path, err)
		}
		n++
	}
	return n, nil
}

// applyFallbacks makes sure no leaf of a failed batch ends up blank in
// the target: a non-empty slot keeps its prior translation, an empty
// one gets the source value verbatim.
func applyFallbacks(target *doctree.Value, failed []doctree.Leaf) error {
	for _, l := range failed {
		if strings.TrimSpace(doctree.GetString(target, l.Path)) != "" {
			continue
		}
		if err := doctree.SetString(target, l.Path, l.Value); err != nil {
			return fmt.Errorf("fallback at %s: %w", l.Path, err)
		}
	}
	return nil
}

// overlayStructural copies every structural leaf verbatim from source
// into the target, creating intermediate containers as needed. Typed
// scalars keep their tag so an int stays an int in the output. Runs
// unconditionally on every sync, independent of the change-set, so the
// two variants can never drift on identifiers, dates, or codes.
func overlayStructural(target *doctree.Value, structural []doctree.Leaf) error {
	for _, l := range structural {
		v := &doctree.Value{Kind: doctree.Scalar, Str: l.Value, Tag: l.Tag}
		if err := doctree.Set(target, l.Path, v); err != nil {
			return fmt.Errorf("structural overlay at %s: %w", l.Path, err)
		}
	}
	return nil
}
