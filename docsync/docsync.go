// Package docsync implements incremental, structure-aware synchronization
// of a bilingual document pair: it detects which leaves changed since the
// last run, pushes only the changed translatable leaves through the
// translation provider in rate-limited batches, and merges the results
// back into the target document without disturbing anything else.
//
// One Synchronize call is a single sequential flow. The only state that
// survives between calls is the hash store; callers syncing the same
// document concurrently must serialize externally (see the lockfile
// package).
package docsync

import (
	"context"
	"time"

	"github.com/planweave/bidoc/doctree"
)

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

// Translator is the external translation collaborator. It receives an
// opaque key → source-text map and returns translations for the keys it
// handled; it may omit keys it could not translate. Failures should be
// classifiable via the translate package's error kinds.
type Translator interface {
	TranslateBatch(ctx context.Context, texts map[string]string, targetLang, ruleSet string) (map[string]string, error)
}

// HashStore persists per-leaf content hashes between sync runs.
// Implemented by hashstore.Store.
type HashStore interface {
	Load(ctx context.Context, docID, sourceLang, targetLang string) (map[string]string, error)
	Save(ctx context.Context, docID, sourceLang, targetLang string, hashes map[string]string) error
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls one synchronization call.
type Options struct {
	// SourceLang is the source language code (e.g. "en").
	SourceLang string
	// TargetLang is the target language code (e.g. "ru").
	TargetLang string
	// RuleSet is the translation instruction text injected into each
	// provider request. Treated as an opaque string.
	RuleSet string
	// BatchSize caps how many leaves go into one provider request.
	// Default: 30.
	BatchSize int
	// BatchDelay is the cooperative wait before every batch after the
	// first. Default: 2s.
	BatchDelay time.Duration
	// MaxRetries is how many times a rate-limited batch is retried.
	// Default: 3.
	MaxRetries int
	// RetryBaseDelay is the first backoff wait; it doubles per attempt.
	// Default: 4s.
	RetryBaseDelay time.Duration
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnError emits error messages.
	OnError func(format string, args ...any)
	// Verbose enables per-batch logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveBatchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return 30
}

func (o *Options) effectiveBatchDelay() time.Duration {
	if o.BatchDelay > 0 {
		return o.BatchDelay
	}
	return 2 * time.Second
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) effectiveRetryBaseDelay() time.Duration {
	if o.RetryBaseDelay > 0 {
		return o.RetryBaseDelay
	}
	return 4 * time.Second
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Stats aggregates the caller-visible outcome counts of one call.
type Stats struct {
	// Total is the number of translatable leaves considered.
	Total int
	// Changed is how many of them differed from the stored hashes.
	Changed int
	// Translated is how many leaves were successfully written back.
	Translated int
	// Failed is how many leaves ended in terminally failed batches.
	Failed int
}

// Result is the outcome of one Synchronize call.
type Result struct {
	// Target is the reconciled target document.
	Target *doctree.Value
	// Stats are the outcome counts.
	Stats Stats
}

// changeSet is the split of translatable leaves by hash comparison.
type changeSet struct {
	changed   []doctree.Leaf
	unchanged []doctree.Leaf
}

// splitByHash compares current leaf hashes against the stored ones.
// A leaf is changed when its hash is absent or different.
func splitByHash(leaves []doctree.Leaf, prior map[string]string) changeSet {
	var cs changeSet
	for _, l := range leaves {
		if prior[l.Path.String()] == l.Hash {
			cs.unchanged = append(cs.unchanged, l)
		} else {
			cs.changed = append(cs.changed, l)
		}
	}
	return cs
}
