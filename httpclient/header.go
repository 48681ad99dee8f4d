package httpclient

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
)

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// AuthorizationHeader returns an Authorization header with the given value.
func AuthorizationHeader(value string) Header {
	return Header{Name: "Authorization", Value: value}
}

// BearerTokenHeader returns an Authorization header carrying a bearer token.
func BearerTokenHeader(token string) Header {
	return AuthorizationHeader("Bearer " + token)
}

// ContentTypeHeader returns a Content-Type header.
func ContentTypeHeader(value string) Header {
	return Header{Name: "Content-Type", Value: value}
}

// AcceptLanguageHeader returns an Accept-Language header.
func AcceptLanguageHeader(value string) Header {
	return Header{Name: "Accept-Language", Value: value}
}

// DefaultAcceptLanguageHeader builds a quality-encoded Accept-Language header
// from the LANGUAGE and LANG environment variables, keeping at most six
// languages. It falls back to "en;q=1.0".
func DefaultAcceptLanguageHeader() Header {
	var langs []string
	if v := os.Getenv("LANGUAGE"); v != "" {
		for _, l := range strings.Split(v, ":") {
			langs = appendLanguage(langs, l)
		}
	}
	langs = appendLanguage(langs, os.Getenv("LANG"))
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	if len(langs) > 6 {
		langs = langs[:6]
	}

	parts := make([]string, len(langs))
	for i, l := range langs {
		parts[i] = fmt.Sprintf("%s;q=%.1f", l, 1.0-float64(i)*0.1)
	}
	return AcceptLanguageHeader(strings.Join(parts, ", "))
}

// appendLanguage normalizes a POSIX locale ("pt_BR.UTF-8") to a language
// tag ("pt-BR") and appends it when new.
func appendLanguage(langs []string, locale string) []string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return langs
	}
	for _, l := range langs {
		if strings.EqualFold(l, locale) {
			return langs
		}
	}
	return append(langs, locale)
}

// Headers is an order-preserving, case-insensitive set of headers.
// Adding a header whose name is already present replaces the value in
// place. The zero value is an empty set. Assigning a Headers shares its
// storage; use Clone before mutating a set owned by someone else.
type Headers struct {
	entries []Header
}

// NewHeaders builds a set from hs. Later duplicates replace earlier ones.
func NewHeaders(hs ...Header) Headers {
	var h Headers
	for _, header := range hs {
		h.Add(header)
	}
	return h
}

// HeadersFromMap builds a set from m, ordered by name.
func HeadersFromMap(m map[string]string) Headers {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var h Headers
	for _, name := range names {
		h.Set(name, m[name])
	}
	return h
}

// HeadersFromHTTP builds a set from an http.Header, ordered by name.
// Multi-valued headers are joined with ", ".
func HeadersFromHTTP(header http.Header) Headers {
	m := make(map[string]string, len(header))
	for k, v := range header {
		m[k] = strings.Join(v, ", ")
	}
	return HeadersFromMap(m)
}

func (h Headers) index(name string) int {
	for i, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value for name.
func (h Headers) Get(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.entries[i].Value, true
	}
	return "", false
}

// Value returns the value for name, or "" when absent.
func (h Headers) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Set inserts or replaces the header called name.
func (h *Headers) Set(name, value string) {
	h.Add(Header{Name: name, Value: value})
}

// Add inserts header, replacing any header with the same name in place.
func (h *Headers) Add(header Header) {
	if i := h.index(header.Name); i >= 0 {
		h.entries[i] = header
		return
	}
	h.entries = append(h.entries, header)
}

// Remove deletes the header called name, if present.
func (h *Headers) Remove(name string) {
	if i := h.index(name); i >= 0 {
		h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
	}
}

// Merge returns a new set holding h's headers overlaid with other's.
// On a name collision other's value wins and keeps h's position.
func (h Headers) Merge(other Headers) Headers {
	merged := h.Clone()
	for _, e := range other.entries {
		merged.Add(e)
	}
	return merged
}

// Len returns the number of headers.
func (h Headers) Len() int {
	return len(h.entries)
}

// All returns a copy of the headers in order.
func (h Headers) All() []Header {
	return append([]Header(nil), h.entries...)
}

// Map returns the headers as a map keyed by name.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h.entries))
	for _, e := range h.entries {
		m[e.Name] = e.Value
	}
	return m
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	return Headers{entries: h.All()}
}

// applyTo sets every header on an http.Header, replacing existing values.
func (h Headers) applyTo(header http.Header) {
	for _, e := range h.entries {
		header.Set(e.Name, e.Value)
	}
}
