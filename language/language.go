package language

import "slices"

type Language struct {
	Code string // BCP-47 tag
	Name string
	Flag string
}

var catalog = []Language{
	{Code: "en-US", Name: "English (US)", Flag: "🇺🇸"},
	{Code: "hi-IN", Name: "हिन्दी (Hindi)", Flag: "🇮🇳"},
	{Code: "es-ES", Name: "Español", Flag: "🇪🇸"},
	{Code: "fr-FR", Name: "Français", Flag: "🇫🇷"},
	{Code: "de-DE", Name: "Deutsch", Flag: "🇩🇪"},
	{Code: "ja-JP", Name: "日本語", Flag: "🇯🇵"},
	{Code: "zh-CN", Name: "中文", Flag: "🇨🇳"},
}

// Default is the preference used when nothing is configured.
var Default = []string{"en-US", "hi-IN"}

// All returns the selectable languages in display order.
func All() []Language {
	return slices.Clone(catalog)
}

func Lookup(code string) (Language, bool) {
	for _, l := range catalog {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Label is the flag and name for code, or the bare code if it is not in the
// catalog.
func Label(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Flag + " " + l.Name
	}
	return code
}

// Toggle flips code in the preference list. A selected language is removed
// unless it is the only one left; an unselected one is prepended and so
// becomes the primary language.
func Toggle(selected []string, code string) []string {
	if slices.Contains(selected, code) {
		if len(selected) == 1 {
			return slices.Clone(selected)
		}
		return slices.DeleteFunc(slices.Clone(selected), func(c string) bool { return c == code })
	}
	return append([]string{code}, selected...)
}
