// Package namekey canonicalises archive folder names and extracts the
// (year, name) pair used to reconcile source and target project directories.
package namekey

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Apostrophe is the canonical apostrophe (U+2019) that every variant is folded to.
const Apostrophe = "’"

// DefaultGallerySuffix is stripped from names during normalisation.
const DefaultGallerySuffix = "_gallery"

var (
	apostropheReplacer = strings.NewReplacer(
		"'", Apostrophe,
		"‘", Apostrophe, // left single quote
		"`", Apostrophe,
		"´", Apostrophe, // acute accent
		"ʼ", Apostrophe, // modifier letter apostrophe
		"ʹ", Apostrophe, // modifier letter prime
		"ʻ", Apostrophe, // modifier letter turned comma
		"′", Apostrophe, // prime
	)

	quoteReplacer = strings.NewReplacer(
		"\"", "",
		"“", "",
		"”", "",
		"„", "",
		"«", "",
		"»", "",
	)

	whitespaceMatcher  = regexp.MustCompile(`\s+`)
	leadingYearMatcher = regexp.MustCompile(`^(\d{4})\s+(.+)$`)
	anyYearMatcher     = regexp.MustCompile(`\d{4}`)
)

// ProjectKey identifies a project by its four digit year and display name.
type ProjectKey struct {
	Year string `json:"year"`
	Name string `json:"name"`
}

func (k ProjectKey) String() string {
	return fmt.Sprintf("%s %s", k.Year, k.Name)
}

// Underscored renders the key as used in output filenames, e.g. "2023_Some_Project".
func (k ProjectKey) Underscored() string {
	return fmt.Sprintf("%s_%s", k.Year, strings.ReplaceAll(k.Name, " ", "_"))
}

// Normalize applies, in order: apostrophe folding, quotation stripping,
// whitespace collapsing, trimming and trailing '_gallery' removal. Repeated
// suffixes are all removed so the result is stable under re-application.
func Normalize(raw string) string {
	return NormalizeWithSuffix(raw, DefaultGallerySuffix)
}

// NormalizeWithSuffix is Normalize with a configurable trailing suffix.
func NormalizeWithSuffix(raw string, suffix string) string {
	s := apostropheReplacer.Replace(raw)
	s = quoteReplacer.Replace(s)
	s = CollapseWhitespace(s)
	for suffix != "" && HasSuffixFold(s, suffix) {
		s = strings.TrimSpace(s[:len(s)-len(suffix)])
	}

	return s
}

// FoldApostrophes replaces every apostrophe variant with Apostrophe, leaving the rest of the name untouched.
func FoldApostrophes(s string) string {
	return apostropheReplacer.Replace(s)
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims the result.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceMatcher.ReplaceAllString(s, " "))
}

// HasSuffixFold reports whether s ends with suffix, ignoring case.
func HasSuffixFold(s string, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// ExtractYearAndName normalises the raw name and splits it in to a ProjectKey. A
// leading "YYYY Name" form is preferred, otherwise the first four digit run found
// anywhere is used as the year and removed from the name. The boolean
// result is false when no year is present or the remaining name is empty.
func ExtractYearAndName(raw string) (ProjectKey, bool) {
	normalized := Normalize(raw)
	if normalized == "" {
		return ProjectKey{}, false
	}

	if groups := leadingYearMatcher.FindStringSubmatch(normalized); groups != nil {
		return ProjectKey{Year: groups[1], Name: strings.TrimSpace(groups[2])}, true
	}

	loc := anyYearMatcher.FindStringIndex(normalized)
	if loc == nil {
		return ProjectKey{}, false
	}

	year := normalized[loc[0]:loc[1]]
	remainder := normalized[:loc[0]] + " " + normalized[loc[1]:]
	name := CollapseWhitespace(strings.Trim(CollapseWhitespace(remainder), " _-.,"))
	if name == "" {
		return ProjectKey{}, false
	}

	return ProjectKey{Year: year, Name: name}, true
}

// SplitLeadingYear splits a "YYYY Name" directory name in to a ProjectKey
// without normalising the name, so the key renders as the name was written.
func SplitLeadingYear(raw string) (ProjectKey, bool) {
	groups := leadingYearMatcher.FindStringSubmatch(strings.TrimSpace(raw))
	if groups == nil {
		return ProjectKey{}, false
	}

	return ProjectKey{Year: groups[1], Name: strings.TrimSpace(groups[2])}, true
}

// Simplify lowercases the name, removes everything that is not a letter,
// digit or space, and collapses whitespace. Only suitable for comparison.
func Simplify(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}

	return CollapseWhitespace(sb.String())
}
