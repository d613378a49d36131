package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/planweave/bidoc/langmeta"
	"github.com/planweave/bidoc/settings"
)

// ---------------------------------------------------------------------------
// Rule-set registry
// ---------------------------------------------------------------------------

// RuleSetConfig holds all rule sets loaded from prompts.json.
type RuleSetConfig struct {
	Prompts map[string]string `json:"prompts"`
}

// globalRuleSets holds the loaded rule-set configuration.
var globalRuleSets *RuleSetConfig

// DefaultRuleSet is the built-in translation instruction set for project
// documents. {{targetLang}} is replaced with the native language name.
const DefaultRuleSet = `You are a professional translator specializing in project management documentation. You are translating fields of a structured project document (objectives, problem analyses, tasks, risks).

CONTEXT AWARENESS:
- The audience is project managers, donors, and field staff
- Tone: formal project-document register, precise and unambiguous
- Use project management terminology that is standard in {{targetLang}}

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in {{targetLang}}, not word-for-word
- Adapt sentence structure to match {{targetLang}} conventions
- Maintain the original tone and intent, but express it naturally in {{targetLang}}
- Keep brand names, organization names, and proper nouns unchanged

TECHNICAL REQUIREMENTS:
- You receive a JSON object mapping opaque keys to source texts.
- Return ONLY a JSON object with exactly the same keys and translated values.
- Preserve numbers, dates, units, and reference codes inside the text exactly as-is.
- Return ONLY the JSON object, no explanations or markdown code blocks.`

// FillRuleSet instructs the model when completing partially authored
// documents; shared with the generation subsystem.
const FillRuleSet = `You are a project design assistant completing a structured project document. Generate concise, professional field values in {{targetLang}} that fit the surrounding document. Return ONLY a JSON object with exactly the keys you were given.`

// defaultRuleSetsMap returns all built-in rule sets as a map.
func defaultRuleSetsMap() map[string]string {
	return map[string]string{
		"default": DefaultRuleSet,
		"fill":    FillRuleSet,
	}
}

// LoadRuleSetsFromFile loads rule sets from a JSON file.
// A missing file is not an error: the embedded defaults apply.
func LoadRuleSetsFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read prompts file: %w", err)
	}

	var config RuleSetConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse prompts file: %w", err)
	}

	globalRuleSets = &config
	return nil
}

// createDefaultRuleSetsFile writes the built-in rule sets to path.
func createDefaultRuleSetsFile(path string) error {
	config := RuleSetConfig{Prompts: defaultRuleSetsMap()}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default prompts file: %w", err)
	}
	return nil
}

// LoadRuleSetsFromDefaultLocations loads the rule-set registry from the
// user data directory, creating it with built-in defaults on first use.
// Returns the path of the loaded file.
func LoadRuleSetsFromDefaultLocations() (string, error) {
	path, err := settings.PromptsFilePath()
	if err != nil {
		return "", fmt.Errorf("cannot determine prompts file path: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultRuleSetsFile(path); err != nil {
			return "", fmt.Errorf("creating default prompts file: %w", err)
		}
	}

	if err := LoadRuleSetsFromFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// RuleSet returns the named rule set with {{targetLang}} resolved to the
// native name of targetLang. Unknown names fall back to the default set.
func RuleSet(name, targetLang string) string {
	prompt := ""
	if globalRuleSets != nil {
		if p, ok := globalRuleSets.Prompts[name]; ok && p != "" {
			prompt = p
		}
	}
	if prompt == "" {
		if p, ok := defaultRuleSetsMap()[name]; ok {
			prompt = p
		} else {
			prompt = DefaultRuleSet
		}
	}
	return strings.ReplaceAll(prompt, "{{targetLang}}", langmeta.NativeName(targetLang))
}
