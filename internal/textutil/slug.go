package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLen bounds slugs well below common file name limits once an
// extension is appended.
const maxSlugLen = 100

var lowerCaser = cases.Lower(language.Und)

// FoldKey returns the canonical lowercase form of an identifier used for
// case-insensitive deduplication. Surrounding whitespace is dropped.
func FoldKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return lowerCaser.String(value)
}

// Slug converts an identifier to a lowercase filesystem-safe name. Letters
// are transliterated to ASCII where a decomposition exists, digits, dots,
// hyphens and underscores are kept, and every other run of characters becomes
// a single hyphen. Leading and trailing hyphens and dots are trimmed. The
// result is never empty and never contains a path separator.
func Slug(value string) string {
	key := FoldKey(value)
	if key == "" {
		return hashSlug(value)
	}

	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), key)
	if err != nil {
		stripped = key
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingDash := false
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}

	out := strings.Trim(b.String(), "-.")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-.")
	}
	if out == "" {
		return hashSlug(key)
	}
	return out
}

func hashSlug(value string) string {
	sum := sha256.Sum256([]byte(value))
	return "id-" + hex.EncodeToString(sum[:])[:12]
}
