package middleware

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// NormalizeKeys rewrites every object key of the call payload, at any
// depth, from snake_case or kebab-case to camelCase. A call without a
// payload passes through unchanged.
func NormalizeKeys() pipeline.Stage {
	return func(call *pipeline.Call, next pipeline.Next) error {
		if call.Payload != nil {
			call.Payload = CamelCaseKeys(call.Payload)
		}
		return next()
	}
}

// CamelCaseKeys returns v with all map keys converted to camelCase.
// Maps and slices are copied; other values are returned as-is. When
// several keys convert to the same name, the key that was already in
// camelCase wins. Among converted keys the lexically smallest one wins.
func CamelCaseKeys(v any) any {
	// Casers are stateful and must not be shared between goroutines.
	conv := keyConverter{
		lower: cases.Lower(language.Und),
		title: cases.Title(language.Und),
	}
	return conv.value(v)
}

type keyConverter struct {
	lower cases.Caser
	title cases.Caser
}

func (kc keyConverter) value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(t))
		for _, k := range keys {
			camel := kc.key(k)
			if _, taken := out[camel]; taken && camel != k {
				continue
			}
			if _, native := t[camel]; native && camel != k {
				continue
			}
			out[camel] = kc.value(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = kc.value(val)
		}
		return out
	default:
		return v
	}
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-'
}

// key converts a single key. Leading separators are preserved.
func (kc keyConverter) key(k string) string {
	body := strings.TrimLeftFunc(k, isSeparator)
	if !strings.ContainsFunc(body, isSeparator) {
		return k
	}
	lead := k[:len(k)-len(body)]

	parts := strings.FieldsFunc(body, isSeparator)
	if len(parts) == 0 {
		return k
	}

	var b strings.Builder
	b.Grow(len(k))
	b.WriteString(lead)
	b.WriteString(kc.lower.String(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(kc.title.String(p))
	}
	return b.String()
}
