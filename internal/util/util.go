package util

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugMaxLen = 80
	slugEmpty  = "item"

	memberHashLen = 10
)

var (
	nonAlnumRegexp = regexp.MustCompile(`[^a-z0-9]+`)

	// NFKD plus mark removal folds diacritics ("ę" -> "e") before the ASCII pass.
	slugFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// Slugify normalizes a display name to a lowercase ASCII identifier with
// non-alphanumeric runs collapsed to single hyphens. The result is stable for
// a given input but not guaranteed unique across unrelated names.
func Slugify(name string) string {
	folded, _, err := transform.String(slugFold, strings.TrimSpace(name))
	if err != nil {
		folded = strings.TrimSpace(name)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	s := nonAlnumRegexp.ReplaceAllString(strings.ToLower(b.String()), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = slugEmpty
	}
	if len(s) > slugMaxLen {
		s = s[:slugMaxLen]
	}

	return s
}

// MemberID derives a stable member identifier from a category-relative path.
// The hash part depends only on the path, not on file content, so rescans
// keep ids stable.
func MemberID(relPath string) string {
	rel := strings.ReplaceAll(relPath, "\\", "/")

	return Slugify(path.Base(rel)) + "-" + ShortHash(rel, memberHashLen)
}

// ShortHash returns the first n hex characters of the md5 sum of s.
func ShortHash(s string, n int) string {
	sum := md5.Sum([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		n = len(h)
	}

	return h[:n]
}

// FormatPLN renders a price the Polish way: space-grouped thousands, comma
// decimals, "zł" suffix ("1 234,56 zł").
func FormatPLN(value float64) string {
	s := fmt.Sprintf("%.2f", value)

	intPart, fracPart, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, " ") + "," + fracPart
	if neg {
		out = "-" + out
	}

	return out + " zł"
}
