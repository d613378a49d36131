// Package config — bidoc.yaml project configuration.
//
// A bidoc.yaml in the project root is the sole source of truth for
// which documents are synchronized and between which languages. Every
// document must be explicitly declared; there is no auto-detection.
//
// Example:
//
//	source_lang: en
//	target_lang: ru
//	provider: google
//	documents:
//	  - id: 7f8c9a2e-...
//	    name: Irrigation project
//	    source: docs/project.en.yaml
//	    target: docs/project.ru.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/planweave/bidoc/hashstore"
)

// FileName is the default config file name.
const FileName = "bidoc.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level bidoc.yaml structure.
type File struct {
	// SourceLang is the source language code (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// TargetLang is the target language code.
	TargetLang string `yaml:"target_lang"`
	// Provider is the default AI provider ID (default "google").
	Provider string `yaml:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`
	// RuleSet names the rule set from prompts.json (default "default").
	RuleSet string `yaml:"rule_set,omitempty"`
	// Store is the hash database path relative to bidoc.yaml
	// (default "bidoc.db").
	Store string `yaml:"store,omitempty"`
	// Documents is the list of synchronized documents.
	Documents []Document `yaml:"documents"`

	// dir is the directory bidoc.yaml was loaded from.
	dir string
}

// Document describes one synchronized document pair.
type Document struct {
	// ID is the stable identifier used as the hash-store key.
	// Minted as a UUID when missing.
	ID string `yaml:"id"`
	// Name is a human-readable label shown in status/logs.
	Name string `yaml:"name,omitempty"`
	// Source is the source-language document file, relative to bidoc.yaml.
	Source string `yaml:"source"`
	// Target is the target-language document file, relative to bidoc.yaml.
	Target string `yaml:"target"`
	// TargetLang overrides the global target language for this document.
	TargetLang string `yaml:"target_lang,omitempty"`
	// RuleSet overrides the global rule set for this document.
	RuleSet string `yaml:"rule_set,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates bidoc.yaml from the given directory.
// Returns nil without error if the file does not exist.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.dir = rootDir

	if f.SourceLang == "" {
		f.SourceLang = "en"
	}
	if f.Provider == "" {
		f.Provider = "google"
	}
	if f.RuleSet == "" {
		f.RuleSet = "default"
	}
	if f.Store == "" {
		f.Store = hashstore.DefaultFileName
	}
	if f.TargetLang == "" {
		return nil, fmt.Errorf("%s: target_lang is required", path)
	}
	if len(f.Documents) == 0 {
		return nil, fmt.Errorf("%s: at least one document is required", path)
	}

	for i := range f.Documents {
		d := &f.Documents[i]
		if d.Source == "" || d.Target == "" {
			return nil, fmt.Errorf("%s: document %d: source and target are required", path, i+1)
		}
		if d.Name == "" {
			d.Name = strings.TrimSuffix(filepath.Base(d.Source), filepath.Ext(d.Source))
		}
	}
	return &f, nil
}

// Save writes the config back to its directory.
func (f *File) Save() error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(f.dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Dir returns the directory bidoc.yaml was loaded from.
func (f *File) Dir() string { return f.dir }

// StorePath returns the absolute hash-store path.
func (f *File) StorePath() string {
	if filepath.IsAbs(f.Store) {
		return f.Store
	}
	return filepath.Join(f.dir, f.Store)
}

// Resolve returns an absolute path for a document-relative file.
func (f *File) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(f.dir, rel)
}

// EnsureIDs mints a UUID for every document missing one and reports
// whether the config needs saving.
func (f *File) EnsureIDs() bool {
	changed := false
	for i := range f.Documents {
		if f.Documents[i].ID == "" {
			f.Documents[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}

// DocTargetLang returns the effective target language for a document.
func (f *File) DocTargetLang(d Document) string {
	if d.TargetLang != "" {
		return d.TargetLang
	}
	return f.TargetLang
}

// DocRuleSet returns the effective rule set name for a document.
func (f *File) DocRuleSet(d Document) string {
	if d.RuleSet != "" {
		return d.RuleSet
	}
	return f.RuleSet
}
