package converter

import (
	"strings"
	"unicode/utf8"
)

// SanitizeFilename removes NUL, path separators and all C0/C1 control
// characters from name. Every other character, including non-ASCII text,
// is kept.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 is passed through byte for byte.
			b.WriteByte(name[i])
			i++
			continue
		}
		if !unsafeRune(r) {
			b.WriteString(name[i : i+size])
		}
		i += size
	}
	return b.String()
}

func unsafeRune(r rune) bool {
	return r == '/' || r == '\\' || r <= 0x1f || (r >= 0x7f && r <= 0x9f)
}

// Ext returns the lower-cased text after the last dot, or "" when name has
// no dot.
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Stem returns name without its final extension and the preceding dot.
func Stem(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Gate is the extension allow-list.
type Gate struct {
	allowed map[string]bool
}

// NewGate builds a Gate from extensions without the leading dot.
func NewGate(exts []string) Gate {
	g := Gate{allowed: make(map[string]bool, len(exts))}
	for _, e := range exts {
		g.allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return g
}

// Allowed reports whether name has a dot and an allow-listed extension
// after the last one.
func (g Gate) Allowed(name string) bool {
	if !strings.Contains(name, ".") {
		return false
	}
	return g.allowed[Ext(name)]
}
