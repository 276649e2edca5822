// Package locale renders player-facing room errors in the language the
// identity service reports for each user.
//
// The en-US catalog carries the bare message keys: clients ship their
// own copy for those and treat the wire string as an identifier. The
// other catalogs carry ready-to-display text.
package locale

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var catalogFS embed.FS

// Default is the language used when a client's tag is unsupported.
const Default = "en-US"

// Langs lists the supported language tags in priority order.
var Langs = []string{"en-US", "zh-CN", "zh-TW"}

var bundles = loadBundles()

func loadBundles() map[string]map[string]string {
	out := make(map[string]map[string]string, len(Langs))
	for _, lang := range Langs {
		data, err := catalogFS.ReadFile("locales/" + lang + ".yaml")
		if err != nil {
			panic(fmt.Sprintf("locale: missing catalog for %s: %v", lang, err))
		}
		catalog := make(map[string]string)
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			panic(fmt.Sprintf("locale: invalid catalog for %s: %v", lang, err))
		}
		out[lang] = catalog
	}
	return out
}

// Parse normalizes a client-reported BCP 47 tag to a supported one,
// matching the exact tag first and the primary subtag second.
func Parse(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Default
	}
	for _, lang := range Langs {
		if strings.EqualFold(tag, lang) {
			return lang
		}
	}
	primary, _, _ := strings.Cut(tag, "-")
	for _, lang := range Langs {
		langPrimary, _, _ := strings.Cut(lang, "-")
		if strings.EqualFold(primary, langPrimary) {
			return lang
		}
	}
	return Default
}

// Tr renders key in the given language. Unknown keys pass through
// unchanged so new errors degrade to their key instead of failing.
func Tr(lang, key string) string {
	if catalog, ok := bundles[lang]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}
	if msg, ok := bundles[Default][key]; ok {
		return msg
	}
	return key
}
