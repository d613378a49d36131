package docsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/planweave/bidoc/doctree"
	"github.com/planweave/bidoc/translate"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeTranslator drives Synchronize without a network. fn gets the
// 1-based call number and the submitted batch.
type fakeTranslator struct {
	calls   int
	batches []map[string]string
	fn      func(call int, texts map[string]string) (map[string]string, error)
}

func (f *fakeTranslator) TranslateBatch(ctx context.Context, texts map[string]string, targetLang, ruleSet string) (map[string]string, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	return f.fn(f.calls, texts)
}

// echoTranslator marks every value so tests can tell translated slots
// from copied ones.
func echoTranslator() *fakeTranslator {
	return &fakeTranslator{fn: func(_ int, texts map[string]string) (map[string]string, error) {
		out := make(map[string]string, len(texts))
		for k, v := range texts {
			out[k] = "[ru] " + v
		}
		return out, nil
	}}
}

// memStore is an in-memory HashStore.
type memStore struct {
	rows     map[string]string
	loadErr  error
	saveErr  error
	saves    int
	saveRows []map[string]string
}

func newMemStore() *memStore { return &memStore{rows: map[string]string{}} }

func (m *memStore) Load(ctx context.Context, docID, src, tgt string) (map[string]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]string, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(ctx context.Context, docID, src, tgt string, hashes map[string]string) error {
	m.saves++
	m.saveRows = append(m.saveRows, hashes)
	if m.saveErr != nil {
		return m.saveErr
	}
	for k, v := range hashes {
		m.rows[k] = v
	}
	return nil
}

func sourceDoc() *doctree.Value {
	root := doctree.NewMap()
	root.SetField("title", doctree.NewScalar("Rollout plan"))

	meta := doctree.NewMap()
	meta.SetField("id", doctree.NewScalar("PLN-1"))
	meta.SetField("status", doctree.NewScalar("Open"))
	root.SetField("meta", meta)

	causes := doctree.NewList()
	c := doctree.NewMap()
	c.SetField("causeId", doctree.NewScalar("C-1"))
	c.SetField("description", doctree.NewScalar("Vendor delay"))
	causes.Append(c)
	root.SetField("causes", causes)
	return root
}

func fastOpts() Options {
	return Options{
		SourceLang:     "en",
		TargetLang:     "ru",
		BatchDelay:     time.Millisecond,
		RetryBaseDelay: time.Millisecond,
	}
}

func mustGet(t *testing.T, doc *doctree.Value, path string) string {
	t.Helper()
	p, err := doctree.ParsePath(path)
	if err != nil {
		t.Fatal(err)
	}
	return doctree.GetString(doc, p)
}

// ---------------------------------------------------------------------------
// Synchronize
// ---------------------------------------------------------------------------

func TestSynchronize_InitialFullTranslation(t *testing.T) {
	store := newMemStore()
	tr := echoTranslator()

	res, err := Synchronize(context.Background(), sourceDoc(), nil, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatalf("Synchronize error: %v", err)
	}

	if res.Stats.Total != 2 || res.Stats.Changed != 2 || res.Stats.Translated != 2 || res.Stats.Failed != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if got := mustGet(t, res.Target, "title"); got != "[ru] Rollout plan" {
		t.Errorf("title = %q", got)
	}
	if got := mustGet(t, res.Target, "causes[0].description"); got != "[ru] Vendor delay" {
		t.Errorf("description = %q", got)
	}
	// Structural leaves come over verbatim.
	if got := mustGet(t, res.Target, "meta.id"); got != "PLN-1" {
		t.Errorf("meta.id = %q", got)
	}
	if got := mustGet(t, res.Target, "meta.status"); got != "Open" {
		t.Errorf("meta.status = %q", got)
	}
	if len(store.rows) != 2 {
		t.Errorf("store has %d rows, want 2", len(store.rows))
	}
}

func TestSynchronize_SecondRunIsIdempotent(t *testing.T) {
	store := newMemStore()
	tr := echoTranslator()
	src := sourceDoc()

	first, err := Synchronize(context.Background(), src, nil, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}

	second, err := Synchronize(context.Background(), src, first.Target, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if second.Stats.Changed != 0 {
		t.Errorf("second run changed = %d, want 0", second.Stats.Changed)
	}
	// One batch per section on the first run, none on the second.
	if tr.calls != 2 {
		t.Errorf("translator called %d times across both runs, want 2", tr.calls)
	}
	if !first.Target.Equal(second.Target) {
		t.Error("second run altered the target")
	}
}

func TestSynchronize_OnlyChangedLeavesAreSent(t *testing.T) {
	store := newMemStore()
	src := sourceDoc()

	// Seed hashes as if everything was synced, then edit one leaf.
	for _, l := range doctree.Leaves(src) {
		if !doctree.IsStructural(l) {
			store.rows[l.Path.String()] = l.Hash
		}
	}
	p, _ := doctree.ParsePath("causes[0].description")
	doctree.SetString(src, p, "Vendor delay and customs hold-up")

	existing := sourceDoc()
	doctree.SetString(existing, p, "[ru-old] Vendor delay")

	tr := echoTranslator()
	res, err := Synchronize(context.Background(), src, existing, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}

	if res.Stats.Changed != 1 || res.Stats.Translated != 1 {
		t.Errorf("stats = %+v, want exactly one changed leaf", res.Stats)
	}
	if tr.calls != 1 || len(tr.batches[0]) != 1 {
		t.Errorf("translator got %d calls with %v", tr.calls, tr.batches)
	}
	if got := mustGet(t, res.Target, "causes[0].description"); got != "[ru] Vendor delay and customs hold-up" {
		t.Errorf("edited leaf = %q", got)
	}
	// The untouched leaf keeps its prior translation.
	if got := mustGet(t, res.Target, "title"); got != "Rollout plan" {
		t.Errorf("unchanged leaf was rewritten: %q", got)
	}
}

func TestSynchronize_FailedBatchKeepsPriorTranslation(t *testing.T) {
	store := newMemStore()
	src := sourceDoc()

	existing := sourceDoc()
	p, _ := doctree.ParsePath("title")
	doctree.SetString(existing, p, "[ru-old] Rollout plan")

	tr := &fakeTranslator{fn: func(int, map[string]string) (map[string]string, error) {
		return nil, &translate.APIError{Kind: translate.KindUnavailable, Message: "down"}
	}}

	res, err := Synchronize(context.Background(), src, existing, "doc-1", store, tr, fastOpts())
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if res == nil {
		t.Fatal("a valid result must accompany ErrAllFailed")
	}
	if res.Stats.Failed != 2 || res.Stats.Translated != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	// Slot with a prior translation keeps it.
	if got := mustGet(t, res.Target, "title"); got != "[ru-old] Rollout plan" {
		t.Errorf("title = %q, want prior translation kept", got)
	}
	// Slot without one falls back to the source text, never blank.
	if got := mustGet(t, res.Target, "causes[0].description"); got != "Vendor delay" {
		t.Errorf("description = %q, want source fallback", got)
	}
	if len(store.rows) != 0 {
		t.Errorf("failed leaves must not be marked synced, store has %v", store.rows)
	}
}

func TestSynchronize_OmittedKeysAreFailures(t *testing.T) {
	// Two translatable leaves in the same section, so they share a batch.
	src := doctree.NewMap()
	causes := doctree.NewList()
	for _, text := range []string{"Vendor delay", "Customs hold-up"} {
		c := doctree.NewMap()
		c.SetField("description", doctree.NewScalar(text))
		causes.Append(c)
	}
	src.SetField("causes", causes)

	store := newMemStore()
	tr := &fakeTranslator{fn: func(_ int, texts map[string]string) (map[string]string, error) {
		// Answer only the first key of the batch.
		return map[string]string{"0": "[ru] " + texts["0"]}, nil
	}}

	res, err := Synchronize(context.Background(), src, nil, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Translated != 1 || res.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want one success and one failure", res.Stats)
	}
	// Every translatable slot is still non-blank.
	for _, l := range doctree.Leaves(src) {
		if got := doctree.GetString(res.Target, l.Path); got == "" {
			t.Errorf("blank slot at %s", l.Path)
		}
	}
	if len(store.rows) != res.Stats.Translated {
		t.Errorf("store rows = %d, want %d (successes only)", len(store.rows), res.Stats.Translated)
	}
}

// titleOnlyDoc has a single translatable leaf, so call counts map
// directly to attempts.
func titleOnlyDoc() *doctree.Value {
	root := doctree.NewMap()
	root.SetField("title", doctree.NewScalar("Rollout plan"))
	return root
}

func TestSynchronize_RateLimitRetriesThenFails(t *testing.T) {
	opts := fastOpts()
	opts.MaxRetries = 2

	tr := &fakeTranslator{fn: func(int, map[string]string) (map[string]string, error) {
		return nil, &translate.APIError{Kind: translate.KindRateLimit, Message: "429"}
	}}

	res, err := Synchronize(context.Background(), titleOnlyDoc(), nil, "doc-1", newMemStore(), tr, opts)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	// One initial attempt plus MaxRetries retries.
	if tr.calls != 3 {
		t.Errorf("translator called %d times, want 3", tr.calls)
	}
	if res.Stats.Failed != res.Stats.Changed {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestSynchronize_RateLimitSucceedsOnRetry(t *testing.T) {
	tr := &fakeTranslator{fn: func(call int, texts map[string]string) (map[string]string, error) {
		if call <= 2 {
			return nil, &translate.APIError{Kind: translate.KindRateLimit}
		}
		out := make(map[string]string, len(texts))
		for k, v := range texts {
			out[k] = "[ru] " + v
		}
		return out, nil
	}}

	var waits []string
	opts := fastOpts()
	opts.OnLog = func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if strings.Contains(msg, "rate limited, waiting") {
			waits = append(waits, msg)
		}
	}

	res, err := Synchronize(context.Background(), titleOnlyDoc(), nil, "doc-1", newMemStore(), tr, opts)
	if err != nil {
		t.Fatal(err)
	}
	if tr.calls != 3 {
		t.Errorf("translator called %d times, want 3", tr.calls)
	}
	if res.Stats.Failed != 0 || res.Stats.Translated != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	// Two backoff waits, the second twice the base delay.
	if len(waits) != 2 {
		t.Fatalf("logged %d backoff waits, want 2: %v", len(waits), waits)
	}
	if !strings.Contains(waits[0], "waiting 1ms") || !strings.Contains(waits[1], "waiting 2ms") {
		t.Errorf("backoff did not double: %v", waits)
	}
}

func TestSynchronize_AuthErrorAbortsCall(t *testing.T) {
	tr := &fakeTranslator{fn: func(int, map[string]string) (map[string]string, error) {
		return nil, &translate.APIError{Kind: translate.KindAuth, Message: "bad key"}
	}}

	res, err := Synchronize(context.Background(), sourceDoc(), nil, "doc-1", newMemStore(), tr, fastOpts())
	if !translate.IsAuth(err) {
		t.Fatalf("err = %v, want auth", err)
	}
	if res == nil {
		t.Fatal("the partial result must accompany the abort")
	}
	if res.Stats.Translated != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if tr.calls != 1 {
		t.Errorf("auth failure retried %d times, want no retries", tr.calls-1)
	}
}

func TestSynchronize_AbortKeepsCompletedBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	// First batch (the title section) succeeds, then the call is
	// cancelled before the causes batch starts.
	tr := &fakeTranslator{fn: func(call int, texts map[string]string) (map[string]string, error) {
		out := make(map[string]string, len(texts))
		for k, v := range texts {
			out[k] = "[ru] " + v
		}
		cancel()
		return out, nil
	}}

	opts := fastOpts()
	opts.BatchDelay = time.Minute

	res, err := Synchronize(ctx, sourceDoc(), nil, "doc-1", store, tr, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("the partial result must accompany the abort")
	}
	if tr.calls != 1 {
		t.Errorf("translator called %d times, want 1", tr.calls)
	}
	if res.Stats.Translated != 1 {
		t.Errorf("stats = %+v, want one translated leaf", res.Stats)
	}
	// The completed batch is in the result...
	if got := mustGet(t, res.Target, "title"); got != "[ru] Rollout plan" {
		t.Errorf("title = %q", got)
	}
	// ...and the store only claims that batch, so result and store agree.
	if len(store.rows) != 1 {
		t.Fatalf("store has %d rows, want 1: %v", len(store.rows), store.rows)
	}
	if _, ok := store.rows["title"]; !ok {
		t.Errorf("store rows = %v, want the completed leaf", store.rows)
	}
	// The unattempted leaf still carries source text, never a blank.
	if got := mustGet(t, res.Target, "causes[0].description"); got != "Vendor delay" {
		t.Errorf("description = %q", got)
	}
}

func TestSynchronize_StructuralOverlayFixesDrift(t *testing.T) {
	src := sourceDoc()
	existing := sourceDoc()
	// Target drifted: a stale id and a translated enum value.
	p1, _ := doctree.ParsePath("meta.id")
	doctree.SetString(existing, p1, "PLN-OLD")
	p2, _ := doctree.ParsePath("meta.status")
	doctree.SetString(existing, p2, "Открыт")

	store := newMemStore()
	for _, l := range doctree.Leaves(src) {
		if !doctree.IsStructural(l) {
			store.rows[l.Path.String()] = l.Hash
		}
	}

	tr := echoTranslator()
	res, err := Synchronize(context.Background(), src, existing, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if tr.calls != 0 {
		t.Error("overlay must not need the translator")
	}
	if got := mustGet(t, res.Target, "meta.id"); got != "PLN-1" {
		t.Errorf("meta.id = %q, want overlay to win", got)
	}
	if got := mustGet(t, res.Target, "meta.status"); got != "Open" {
		t.Errorf("meta.status = %q, want overlay to win", got)
	}
}

func TestSynchronize_OverlayCoversTypedScalars(t *testing.T) {
	src := sourceDoc()
	src.SetField("revision", &doctree.Value{Kind: doctree.Scalar, Str: "3", Tag: "!!int"})
	src.SetField("archived", &doctree.Value{Kind: doctree.Scalar, Str: "false", Tag: "!!bool"})

	// Target drifted on both typed fields.
	existing := sourceDoc()
	existing.SetField("revision", &doctree.Value{Kind: doctree.Scalar, Str: "1", Tag: "!!int"})
	existing.SetField("archived", &doctree.Value{Kind: doctree.Scalar, Str: "true", Tag: "!!bool"})

	store := newMemStore()
	for _, l := range doctree.Leaves(src) {
		if !doctree.IsStructural(l) {
			store.rows[l.Path.String()] = l.Hash
		}
	}

	tr := echoTranslator()
	res, err := Synchronize(context.Background(), src, existing, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if tr.calls != 0 {
		t.Error("typed scalars must never reach the translator")
	}
	p, _ := doctree.ParsePath("revision")
	if got := doctree.Get(res.Target, p); got == nil || got.Str != "3" || got.Tag != "!!int" {
		t.Errorf("revision = %+v, want overlaid int 3", got)
	}
	p, _ = doctree.ParsePath("archived")
	if got := doctree.Get(res.Target, p); got == nil || got.Str != "false" || got.Tag != "!!bool" {
		t.Errorf("archived = %+v, want overlaid bool false", got)
	}
}

func TestSynchronize_StoreReadFailureForcesFullResync(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk gone")
	tr := echoTranslator()

	res, err := Synchronize(context.Background(), sourceDoc(), nil, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatalf("a store read failure must not abort the sync: %v", err)
	}
	if res.Stats.Changed != res.Stats.Total {
		t.Errorf("stats = %+v, want everything treated as changed", res.Stats)
	}
}

func TestSynchronize_StoreWriteFailureIsNonFatal(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	tr := echoTranslator()

	res, err := Synchronize(context.Background(), sourceDoc(), nil, "doc-1", store, tr, fastOpts())
	if err != nil {
		t.Fatalf("a store write failure must not abort the sync: %v", err)
	}
	if res.Stats.Translated != res.Stats.Changed {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestSynchronize_NilSourceOrTranslator(t *testing.T) {
	if _, err := Synchronize(context.Background(), nil, nil, "d", newMemStore(), echoTranslator(), fastOpts()); err == nil {
		t.Error("nil source should fail")
	}
	if _, err := Synchronize(context.Background(), sourceDoc(), nil, "d", newMemStore(), nil, fastOpts()); err == nil {
		t.Error("nil translator should fail")
	}
}

func TestSynchronize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &fakeTranslator{fn: func(int, map[string]string) (map[string]string, error) {
		return nil, ctx.Err()
	}}
	_, err := Synchronize(ctx, sourceDoc(), nil, "doc-1", newMemStore(), tr, fastOpts())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
