package docsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planweave/bidoc/doctree"
)

// ErrAllFailed is returned when every changed leaf failed to translate.
// The Result accompanying it is still valid: structural leaves were
// overlaid and fallbacks applied, so the caller can distinguish "nothing
// was translated" from a partial sync.
var ErrAllFailed = errors.New("no leaves were translated")

// Synchronize reconciles the target-language variant of a document with
// its source. It indexes the source, classifies leaves, diffs hashes
// against the store, translates changed leaves in sequential batches,
// writes the results into a copy of existingTarget, and persists a
// fresh hash for every leaf that was just translated.
//
// existingTarget may be nil: the target is then seeded as a clone of the
// source, so untranslated leaves carry source text rather than blanks.
// store may be nil, which degrades to a full retranslation every call.
//
// The source document is never mutated. Hash persistence happens per
// successful batch; when the call is abandoned mid-way (context
// cancellation, auth failure) the partial Result accompanies the error
// so the caller can save the target that matches the persisted hashes.
func Synchronize(ctx context.Context, source, existingTarget *doctree.Value, docID string, store HashStore, tr Translator, opts Options) (*Result, error) {
	if source.IsNull() {
		return nil, fmt.Errorf("sync: source document is empty")
	}
	if tr == nil {
		return nil, fmt.Errorf("sync: no translator configured")
	}

	leaves := doctree.Leaves(source)
	translatable, structural := doctree.SplitLeaves(leaves)

	target := existingTarget.Clone()
	if target.IsNull() {
		target = source.Clone()
	}

	byPath := make(map[string]doctree.Leaf, len(translatable))
	for _, l := range translatable {
		byPath[l.Path.String()] = l
	}

	// Prior hashes. A read failure is a safe over-approximation: assume
	// everything changed and resync in full.
	prior := map[string]string{}
	if store != nil {
		loaded, err := store.Load(ctx, docID, opts.SourceLang, opts.TargetLang)
		if err != nil {
			opts.logError("hash store read failed, forcing full resync: %v", err)
		} else {
			prior = loaded
		}
	}

	cs := splitByHash(translatable, prior)
	stats := Stats{Total: len(translatable), Changed: len(cs.changed)}
	opts.log("%d translatable leaves, %d changed, %d structural", stats.Total, stats.Changed, len(structural))

	var failed []doctree.Leaf
	var abortErr error
	batches := buildBatches(cs.changed, opts.effectiveBatchSize())

	for i, b := range batches {
		if i > 0 {
			select {
			case <-ctx.Done():
				abortErr = ctx.Err()
			case <-time.After(opts.effectiveBatchDelay()):
			}
			if abortErr != nil {
				break
			}
		}
		if opts.Verbose {
			opts.log("  batch %d/%d: section %q, %d leaves", i+1, len(batches), b.section, len(b.leaves))
		}

		outcome, err := processBatch(ctx, tr, b, &opts)
		if err != nil {
			abortErr = err
			break
		}
		failed = append(failed, outcome.failed...)

		if len(outcome.translated) == 0 {
			continue
		}
		n, err := writeTranslations(target, byPath, outcome.translated)
		if err != nil {
			return nil, err
		}
		stats.Translated += n

		// Persist hashes for this batch's successes right away, so an
		// abandoned call keeps what was already reconciled.
		if store != nil {
			fresh := make(map[string]string, len(outcome.translated))
			for path := range outcome.translated {
				fresh[path] = byPath[path].Hash
			}
			if err := store.Save(ctx, docID, opts.SourceLang, opts.TargetLang, fresh); err != nil {
				opts.logError("hash store write failed (next sync will redo this work): %v", err)
			}
		}
	}

	stats.Failed = len(failed)

	if err := applyFallbacks(target, failed); err != nil {
		return nil, err
	}
	if err := overlayStructural(target, structural); err != nil {
		return nil, err
	}

	result := &Result{Target: target, Stats: stats}
	if abortErr != nil {
		// Hashes for completed batches are already persisted, so the
		// caller must receive the target that matches them. Dropping it
		// here would leave the store claiming work the target never saw.
		return result, abortErr
	}
	if stats.Changed > 0 && stats.Translated == 0 {
		return result, ErrAllFailed
	}
	return result, nil
}
