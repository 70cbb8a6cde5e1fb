package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLang is used when nothing better matches.
const DefaultLang = "en"

var catalogs = map[string]map[string]interface{}{}

func init() {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		panic(fmt.Sprintf("i18n: read embedded locales: %v", err))
	}
	for _, e := range entries {
		content, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			panic(fmt.Sprintf("i18n: read %s: %v", e.Name(), err))
		}
		var data map[string]interface{}
		if err := json.Unmarshal(content, &data); err != nil {
			panic(fmt.Sprintf("i18n: parse %s: %v", e.Name(), err))
		}
		catalogs[strings.TrimSuffix(e.Name(), ".json")] = data
	}
	if _, ok := catalogs[DefaultLang]; !ok {
		panic("i18n: missing default locale")
	}
	matcher = newMatcher()
}

// Supported lists the available languages, default first.
func Supported() []string {
	langs := []string{DefaultLang}
	for lang := range catalogs {
		if lang != DefaultLang {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs[1:])
	return langs
}

// Localizer handles translation lookups
type Localizer struct {
	lang string
	data map[string]interface{}
}

// New returns the localizer for lang, falling back to English for unknown
// languages.
func New(lang string) *Localizer {
	data, ok := catalogs[lang]
	if !ok {
		lang, data = DefaultLang, catalogs[DefaultLang]
	}
	return &Localizer{lang: lang, data: data}
}

// T translates a key path like "backend.errors.invalid_type". Unknown keys
// are returned as-is.
func (l *Localizer) T(key string) string {
	return l.TWithData(key, nil)
}

// TWithData translates a key and fills {{name}} placeholders from data.
func (l *Localizer) TWithData(key string, data map[string]string) string {
	if s, ok := l.Lookup(key, data); ok {
		return s
	}
	return key
}

// Lookup is TWithData that reports whether the key exists. Keys missing
// from a non-default catalog fall back to English.
func (l *Localizer) Lookup(key string, data map[string]string) (string, bool) {
	if s, ok := lookup(l.data, key); ok {
		return interpolate(s, data), true
	}
	if l.lang != DefaultLang {
		if s, ok := lookup(catalogs[DefaultLang], key); ok {
			return interpolate(s, data), true
		}
	}
	return "", false
}

func (l *Localizer) Lang() string {
	return l.lang
}

func lookup(data map[string]interface{}, key string) (string, bool) {
	parts := strings.Split(key, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			s, ok := current[part].(string)
			return s, ok
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}

func interpolate(text string, data map[string]string) string {
	for key, value := range data {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}

// T translates with the default language.
func T(key string) string {
	return New(DefaultLang).T(key)
}

func TWithData(key string, data map[string]string) string {
	return New(DefaultLang).TWithData(key, data)
}

var matcher language.Matcher

func newMatcher() language.Matcher {
	var tags []language.Tag
	for _, lang := range Supported() {
		tags = append(tags, language.Make(lang))
	}
	return language.NewMatcher(tags)
}

// Match picks the best supported language for an Accept-Language value.
func Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	return Supported()[idx]
}
