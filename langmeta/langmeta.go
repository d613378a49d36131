// Package langmeta provides a shared language metadata registry
// (English and native names) used by the CLI and the rule-set registry.
package langmeta

import "strings"

// Meta describes language display metadata.
type Meta struct {
	// English is the English language name, used in prompts.
	English string
	// Native is the language's own name, used in CLI output.
	Native string
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":    {English: "Arabic", Native: "العربية"},
	"bg":    {English: "Bulgarian", Native: "Български"},
	"bn":    {English: "Bengali", Native: "বাংলা"},
	"cs":    {English: "Czech", Native: "Čeština"},
	"da":    {English: "Danish", Native: "Dansk"},
	"de":    {English: "German", Native: "Deutsch"},
	"el":    {English: "Greek", Native: "Ελληνικά"},
	"en":    {English: "English", Native: "English"},
	"en-GB": {English: "English (UK)", Native: "English (UK)"},
	"es":    {English: "Spanish", Native: "Español"},
	"es-MX": {English: "Spanish (Mexico)", Native: "Español (México)"},
	"et":    {English: "Estonian", Native: "Eesti"},
	"fa":    {English: "Persian", Native: "فارسی"},
	"fi":    {English: "Finnish", Native: "Suomi"},
	"fr":    {English: "French", Native: "Français"},
	"he":    {English: "Hebrew", Native: "עברית"},
	"hi":    {English: "Hindi", Native: "हिन्दी"},
	"hr":    {English: "Croatian", Native: "Hrvatski"},
	"hu":    {English: "Hungarian", Native: "Magyar"},
	"id":    {English: "Indonesian", Native: "Bahasa Indonesia"},
	"it":    {English: "Italian", Native: "Italiano"},
	"ja":    {English: "Japanese", Native: "日本語"},
	"ko":    {English: "Korean", Native: "한국어"},
	"lt":    {English: "Lithuanian", Native: "Lietuvių"},
	"lv":    {English: "Latvian", Native: "Latviešu"},
	"nl":    {English: "Dutch", Native: "Nederlands"},
	"no":    {English: "Norwegian", Native: "Norsk"},
	"pl":    {English: "Polish", Native: "Polski"},
	"pt":    {English: "Portuguese", Native: "Português"},
	"pt-BR": {English: "Portuguese (Brazil)", Native: "Português (Brasil)"},
	"ro":    {English: "Romanian", Native: "Română"},
	"ru":    {English: "Russian", Native: "Русский"},
	"sk":    {English: "Slovak", Native: "Slovenčina"},
	"sl":    {English: "Slovenian", Native: "Slovenščina"},
	"sr":    {English: "Serbian", Native: "Српски"},
	"sv":    {English: "Swedish", Native: "Svenska"},
	"sw":    {English: "Swahili", Native: "Kiswahili"},
	"th":    {English: "Thai", Native: "ไทย"},
	"tr":    {English: "Turkish", Native: "Türkçe"},
	"uk":    {English: "Ukrainian", Native: "Українська"},
	"vi":    {English: "Vietnamese", Native: "Tiếng Việt"},
	"zh":    {English: "Chinese", Native: "中文"},
	"zh-CN": {English: "Chinese (Simplified)", Native: "简体中文"},
	"zh-TW": {English: "Chinese (Traditional)", Native: "繁體中文"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{English: lang, Native: lang}
}

// NativeName returns the language's own name, falling back to the code.
func NativeName(lang string) string {
	return Resolve(lang).Native
}

// EnglishName returns the English language name, falling back to the code.
func EnglishName(lang string) string {
	return Resolve(lang).English
}
