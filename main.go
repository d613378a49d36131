// bidoc — bilingual project-document synchronizer with AI translation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/planweave/bidoc/config"
	"github.com/planweave/bidoc/docfile"
	"github.com/planweave/bidoc/docsync"
	"github.com/planweave/bidoc/doctree"
	"github.com/planweave/bidoc/hashstore"
	"github.com/planweave/bidoc/i18n"
	"github.com/planweave/bidoc/langmeta"
	"github.com/planweave/bidoc/lockfile"
	"github.com/planweave/bidoc/merge"
	"github.com/planweave/bidoc/settings"
	"github.com/planweave/bidoc/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bidoc",
		Short: "Bilingual project-document synchronizer with AI translation",
		Long: `bidoc — keeps a second-language mirror of a structured project document
synchronized as edits accumulate.

Only leaves that changed since the last sync are re-translated; identifiers,
dates, and enumerated codes are copied verbatim and never sent to the AI.

Commands:
  status      Show documents and pending change counts
  sync        Synchronize target documents with their sources
  fill        Merge generated content into a document (original wins)
  watch       Re-sync automatically when source files change
  auth        Manage provider API keys
  prompts     Show or initialize the translation rule sets

AI Providers:
  google         Google AI (Gemini) — API key required
  groq           Groq — API key required
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (location of bidoc.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newStatusCmd(),
		newSyncCmd(),
		newFillCmd(),
		newWatchCmd(),
		newAuthCmd(),
		newPromptsCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning("interrupted, finishing current batch...")
		cancel()
	}()
	return ctx, cancel
}

// loadProject loads bidoc.yaml from --root, failing when absent.
func loadProject() (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf(i18n.T("No bidoc.yaml found in %s"), rootDir)
	}
	if cfg.EnsureIDs() {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("saving generated document IDs: %w", err)
		}
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bidoc version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: documents + pending change counts)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show documents and pending change counts",
		Long: `Show every document declared in bidoc.yaml with the number of
translatable leaves and how many changed since the last sync.
Does not call the AI provider or modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	store, err := hashstore.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Languages:  %s -> %s (%s)\n",
		cfg.SourceLang, cfg.TargetLang, langmeta.NativeName(cfg.TargetLang))
	fmt.Fprintf(os.Stderr, "  Provider:   %s\n", cfg.Provider)
	fmt.Fprintf(os.Stderr, "  Store:      %s\n", cfg.StorePath())

	fmt.Fprintf(os.Stderr, "\n%sDocuments%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	for _, doc := range cfg.Documents {
		source, err := docfile.Load(cfg.Resolve(doc.Source))
		if err != nil {
			logWarning("%s: %v", doc.Name, err)
			continue
		}
		translatable, structural := doctree.SplitLeaves(doctree.Leaves(source))

		targetLang := cfg.DocTargetLang(doc)
		prior, err := store.Load(ctx, doc.ID, cfg.SourceLang, targetLang)
		if err != nil {
			logWarning("%s: hash store: %v", doc.Name, err)
			prior = map[string]string{}
		}
		changed := 0
		for _, l := range translatable {
			if prior[l.Path.String()] != l.Hash {
				changed++
			}
		}

		marker := colorGreen + "✓" + colorReset
		if changed > 0 {
			marker = colorYellow + fmt.Sprintf("%d pending", changed) + colorReset
		}
		fmt.Fprintf(os.Stderr, "  %-28s %3d leaves (%d structural)  %s\n",
			doc.Name, len(translatable), len(structural), marker)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func newSyncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize target documents with their sources",
		Long: `Synchronize the target-language variant of every document declared in
bidoc.yaml (or one document selected with --doc).

Only leaves whose content changed since the last sync are sent to the AI
provider; structural fields (ids, dates, codes) are copied verbatim.
A failed batch keeps the previous translation or falls back to the source
text, so the target never ends up with blank fields.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runSync(ctx, flags)
		},
	}

	cmd.Flags().StringVar(&flags.providerID, "provider", "", "AI provider (overrides bidoc.yaml)")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model identifier (overrides provider default)")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key (overrides BIDOC_API_KEY and stored credentials)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Custom API endpoint (custom-openai)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Leaves per provider request (default 30)")
	cmd.Flags().DurationVar(&flags.batchDelay, "delay", 0, "Delay between batches (default 2s)")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", 0, "Retries per rate-limited batch (default 3)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show the change-set without translating")
	cmd.Flags().StringVar(&flags.docName, "doc", "", "Sync only the named document")

	return cmd
}

type syncFlags struct {
	providerID string
	model      string
	apiKey     string
	baseURL    string
	batchSize  int
	batchDelay time.Duration
	maxRetries int
	dryRun     bool
	docName    string
}

func runSync(ctx context.Context, flags syncFlags) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(cfg.Dir())
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := hashstore.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	if path, err := translate.LoadRuleSetsFromDefaultLocations(); err != nil {
		logWarning("rule sets: %v (using built-in defaults)", err)
	} else if verbose && path != "" {
		logInfo("rule sets loaded from %s", path)
	}

	var client *translate.Client
	if !flags.dryRun {
		client, err = buildClient(cfg, flags)
		if err != nil {
			return err
		}
	}

	synced := 0
	var failedDocs []string
	for _, doc := range cfg.Documents {
		if flags.docName != "" && doc.Name != flags.docName && doc.ID != flags.docName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		targetLang := cfg.DocTargetLang(doc)
		logInfo(i18n.T("Syncing %s (%s -> %s)..."), doc.Name, cfg.SourceLang, targetLang)

		if flags.dryRun {
			if err := dryRunDoc(ctx, cfg, doc, store); err != nil {
				return err
			}
			continue
		}

		if err := syncDoc(ctx, cfg, doc, store, client, flags); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if translate.IsAuth(err) {
				return err
			}
			logError("%s: %v", doc.Name, err)
			failedDocs = append(failedDocs, doc.Name)
			continue
		}
		synced++
	}

	if len(failedDocs) > 0 {
		return fmt.Errorf("%d document(s) failed: %s", len(failedDocs), strings.Join(failedDocs, ", "))
	}
	if !flags.dryRun && synced > 0 {
		logSuccess(i18n.N("Synced %d document", "Synced %d documents", synced), synced)
	}
	return nil
}

func dryRunDoc(ctx context.Context, cfg *config.File, doc config.Document, store *hashstore.Store) error {
	source, err := docfile.Load(cfg.Resolve(doc.Source))
	if err != nil {
		return err
	}
	translatable, _ := doctree.SplitLeaves(doctree.Leaves(source))

	prior, err := store.Load(ctx, doc.ID, cfg.SourceLang, cfg.DocTargetLang(doc))
	if err != nil {
		logWarning("hash store: %v (assuming full resync)", err)
		prior = map[string]string{}
	}
	changed := 0
	for _, l := range translatable {
		if prior[l.Path.String()] != l.Hash {
			changed++
			fmt.Fprintf(os.Stderr, "  ~ %s\n", l.Path)
		}
	}
	logInfo("%d of %d leaves would be translated", changed, len(translatable))
	return nil
}

func syncDoc(ctx context.Context, cfg *config.File, doc config.Document, store *hashstore.Store, client *translate.Client, flags syncFlags) error {
	source, err := docfile.Load(cfg.Resolve(doc.Source))
	if err != nil {
		return err
	}

	var existing *doctree.Value
	targetPath := cfg.Resolve(doc.Target)
	if _, statErr := os.Stat(targetPath); statErr == nil {
		existing, err = docfile.Load(targetPath)
		if err != nil {
			return err
		}
	}

	targetLang := cfg.DocTargetLang(doc)
	opts := docsync.Options{
		SourceLang: cfg.SourceLang,
		TargetLang: targetLang,
		RuleSet:    translate.RuleSet(cfg.DocRuleSet(doc), targetLang),
		BatchSize:  flags.batchSize,
		BatchDelay: flags.batchDelay,
		MaxRetries: flags.maxRetries,
		OnLog:      logInfo,
		OnError:    logWarning,
		Verbose:    verbose,
	}

	result, err := docsync.Synchronize(ctx, source, existing, doc.ID, store, client, opts)
	if errors.Is(err, docsync.ErrAllFailed) {
		return fmt.Errorf("%s", i18n.T("Translation failed completely, target file not updated"))
	}
	if err != nil {
		// Hashes for completed batches are already in the store; the
		// target must be written anyway or those leaves would look
		// synced without their translations ever reaching disk.
		if result != nil && result.Stats.Translated > 0 {
			if saveErr := docfile.Save(targetPath, result.Target); saveErr != nil {
				logError("%s: saving partial target: %v", doc.Name, saveErr)
			} else {
				logWarning(i18n.T("%s: sync aborted, saved %d translated leaves"), doc.Name, result.Stats.Translated)
			}
		}
		return err
	}

	if err := docfile.Save(targetPath, result.Target); err != nil {
		return err
	}

	s := result.Stats
	if s.Changed == 0 {
		logInfo(i18n.T("Nothing to translate"))
	} else if s.Failed > 0 {
		logWarning("%s: %d/%d leaves translated, %d failed (kept previous or source text)",
			doc.Name, s.Translated, s.Changed, s.Failed)
	} else {
		logSuccess("%s: %d leaves translated", doc.Name, s.Translated)
	}
	return nil
}

// buildClient resolves provider configuration and credentials.
// Lookup order for the API key: --api-key, BIDOC_API_KEY, credential store.
func buildClient(cfg *config.File, flags syncFlags) (*translate.Client, error) {
	providerID := cfg.Provider
	if flags.providerID != "" {
		providerID = flags.providerID
	}
	prov, ok := translate.DefaultProviders()[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}

	if flags.model != "" {
		prov.Model = flags.model
	} else if cfg.Model != "" {
		prov.Model = cfg.Model
	} else if stored := settings.Get(providerID); stored != nil && stored.Model != "" {
		prov.Model = stored.Model
	}

	switch {
	case flags.apiKey != "":
		prov.APIKey = flags.apiKey
	case os.Getenv("BIDOC_API_KEY") != "":
		prov.APIKey = os.Getenv("BIDOC_API_KEY")
	default:
		prov.APIKey = settings.GetAPIKey(providerID)
	}

	if flags.baseURL != "" {
		prov.BaseURL = flags.baseURL
	} else if stored := settings.GetBaseURL(providerID); stored != "" {
		prov.BaseURL = stored
	}
	if prov.BaseURL == "" && providerID == translate.ProviderCustomOpenAI {
		return nil, fmt.Errorf("custom-openai requires --base-url or a stored endpoint")
	}

	client := translate.NewClient(prov)
	client.Verbose = verbose
	return client, nil
}

// ---------------------------------------------------------------------------
// fill (content-fill merge of generated output into a document)
// ---------------------------------------------------------------------------

func newFillCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fill <original> <generated>",
		Short: "Merge generated content into a document (original wins)",
		Long: `Deep-merge a generated document into an original one: every non-empty
original value is kept, generated values only fill the gaps. Used to fold
AI output into a document without discarding user-authored content.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := docfile.Load(args[0])
			if err != nil {
				return err
			}
			generated, err := docfile.Load(args[1])
			if err != nil {
				return err
			}
			merged := merge.Fill(original, generated)

			dest := output
			if dest == "" {
				dest = args[0]
			}
			if err := docfile.Save(dest, merged); err != nil {
				return err
			}
			logSuccess("merged into %s", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: overwrite the original)")
	return cmd
}

// ---------------------------------------------------------------------------
// watch (re-sync on source file changes)
// ---------------------------------------------------------------------------

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-sync automatically when source files change",
		Long: `Watch every source document declared in bidoc.yaml and run a sync
whenever one is written. Rapid consecutive writes are coalesced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runWatch(ctx, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before syncing after a change")
	return cmd
}

func runWatch(ctx context.Context, debounce time.Duration) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]string) // source path -> document name
	dirs := make(map[string]bool)
	for _, doc := range cfg.Documents {
		path := cfg.Resolve(doc.Source)
		watched[path] = doc.Name
		// Watch the directory: editors often replace files on save.
		dir := filepath.Dir(path)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}
	logInfo("watching %d source document(s), Ctrl-C to stop", len(watched))

	var timer *time.Timer
	pending := make(map[string]bool)
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, ok := watched[event.Name]
			if !ok {
				continue
			}
			pending[name] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logWarning("watcher: %v", err)
		case <-fire:
			for name := range pending {
				logInfo("change detected in %s", name)
				if err := runSync(ctx, syncFlags{docName: name}); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logError("sync failed: %v", err)
				}
			}
			pending = make(map[string]bool)
		}
	}
}

// ---------------------------------------------------------------------------
// auth (API key management)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Store, list, and remove AI provider API keys.

Keys are stored in ` + settings.FilePath() + ` with owner-only permissions.`,
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthListCmd(), newAuthRemoveCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "set <provider> <api-key>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, key := args[0], args[1]
			if _, ok := translate.DefaultProviders()[providerID]; !ok {
				return fmt.Errorf("unknown provider %q", providerID)
			}
			var err error
			if baseURL != "" {
				err = settings.SetAPIKeyWithBaseURL(providerID, key, baseURL)
			} else {
				err = settings.SetAPIKey(providerID, key)
			}
			if err != nil {
				return err
			}
			logSuccess("stored API key for %s (%s)", providerID, settings.MaskKey(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Custom API endpoint (custom-openai)")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			store := settings.Load()
			if len(store) == 0 {
				logInfo("no credentials stored")
				return
			}
			for providerID, info := range store {
				line := fmt.Sprintf("  %-16s %s", providerID, settings.MaskKey(info.Key))
				if info.BaseURL != "" {
					line += "  " + info.BaseURL
				}
				fmt.Fprintln(os.Stderr, line)
			}
		},
	}
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove stored credentials for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.Remove(args[0]); err != nil {
				return err
			}
			logSuccess("removed credentials for %s", args[0])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// prompts (rule-set registry)
// ---------------------------------------------------------------------------

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "Show or initialize the translation rule sets",
		Long: `Print the location of the rule-set registry (prompts.json) and make
sure it exists. The file is created with built-in defaults on first use
and can be edited freely.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := translate.LoadRuleSetsFromDefaultLocations()
			if err != nil {
				return err
			}
			logInfo("rule sets file: %s", path)
			return nil
		},
	}
}
