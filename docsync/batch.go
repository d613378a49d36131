package docsync

import (
	"context"
	"strconv"
	"time"

	"github.com/planweave/bidoc/doctree"
	"github.com/planweave/bidoc/translate"
)

// ---------------------------------------------------------------------------
// Batch building
// ---------------------------------------------------------------------------

// batch is a bounded group of changed translatable leaves belonging to
// one top-level document section.
type batch struct {
	section string
	leaves  []doctree.Leaf
}

// buildBatches groups changed leaves by top-level section (first path
// segment) to keep each request thematically coherent, then splits each
// group into size-bounded batches. Section order follows first
// appearance in the document; leaf order is preserved within a section.
func buildBatches(changed []doctree.Leaf, size int) []batch {
	var sections []string
	bySection := make(map[string][]doctree.Leaf)
	for _, l := range changed {
		sec := l.Path.Section()
		if _, ok := bySection[sec]; !ok {
			sections = append(sections, sec)
		}
		bySection[sec] = append(bySection[sec], l)
	}

	var batches []batch
	for _, sec := range sections {
		leaves := bySection[sec]
		for i := 0; i < len(leaves); i += size {
			end := i + size
			if end > len(leaves) {
				end = len(leaves)
			}
			batches = append(batches, batch{section: sec, leaves: leaves[i:end]})
		}
	}
	return batches
}

// texts builds the opaque key → source-text map for the provider.
// Keys are batch-local synthetic indices, never real field paths.
func (b batch) texts() map[string]string {
	m := make(map[string]string, len(b.leaves))
	for i, l := range b.leaves {
		m[strconv.Itoa(i)] = l.Value
	}
	return m
}

// ---------------------------------------------------------------------------
// Batch processing with retry and backoff
// ---------------------------------------------------------------------------

// batchOutcome is what one processed batch contributes to the sync.
type batchOutcome struct {
	// translated maps canonical path strings to translated text.
	translated map[string]string
	// failed are the leaves that got no translation.
	failed []doctree.Leaf
}

// processBatch submits one batch, retrying with exponential backoff on
// rate-limit failures up to the retry ceiling. Auth failures and the
// context's cancellation abort the whole call via the returned error;
// any other failure is terminal for this batch only and reported
// through the outcome with a nil error.
func processBatch(ctx context.Context, tr Translator, b batch, opts *Options) (batchOutcome, error) {
	maxRetries := opts.effectiveMaxRetries()

	for attempt := 0; ; attempt++ {
		translations, err := tr.TranslateBatch(ctx, b.texts(), opts.TargetLang, opts.RuleSet)
		if err == nil {
			return applyBatch(b, translations), nil
		}
		if ctx.Err() != nil {
			return batchOutcome{}, ctx.Err()
		}
		if translate.IsAuth(err) {
			// Configuration failure: no batch can succeed, abort the call.
			return batchOutcome{}, err
		}
		if !translate.IsRateLimit(err) || attempt >= maxRetries {
			opts.logError("batch %q failed (%d leaves): %v", b.section, len(b.leaves), err)
			return batchOutcome{failed: b.leaves}, nil
		}

		wait := opts.effectiveRetryBaseDelay() << attempt
		if hint := translate.RetryAfter(err); hint > wait {
			wait = hint
		}
		opts.log("rate limited, waiting %v before retry (attempt %d/%d)", wait, attempt+1, maxRetries)
		select {
		case <-ctx.Done():
			return batchOutcome{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// applyBatch matches the provider's reply against the submitted leaves.
// Only keys present in the reply count as successes; omitted leaves are
// failed and fall back to their prior or source value downstream.
func applyBatch(b batch, translations map[string]string) batchOutcome {
	out := batchOutcome{translated: make(map[string]string)}
	for i, l := range b.leaves {
		text, ok := translations[strconv.Itoa(i)]
		if !ok || text == "" {
			out.failed = append(out.failed, l)
			continue
		}
		out.translated[l.Path.String()] = text
	}
	return out
}
