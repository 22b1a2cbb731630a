package textutil

import (
	"regexp"
	"strings"
	"time"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lower-cases name and strips all whitespace so that names
// differing only in spacing or case compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// DefaultCompanySuffixes are legal-form suffixes dropped from company
// names. Compound forms come first so they win over their prefixes.
var DefaultCompanySuffixes = []string{
	"Co., Ltd.", "Inc., Ltd.", "Corp., Ltd.",
	"Co.", "Ltd.", "Inc.", "LLC", "Corp.", "Limited", "Corporation", "Company",
	"Entertainment", "Digital", "Interactive", "Studios", "Team",
	"S.p.A.", "S.A.", "SA", "GmbH", "AB", "Oy", "BV", "K.K.",
}

var compiledDefaultSuffixes = CompileCompanySuffixes(DefaultCompanySuffixes)

// CompileCompanySuffixes builds the matcher used by CleanCompanyName.
func CompileCompanySuffixes(suffixes []string) *regexp.Regexp {
	quoted := make([]string, len(suffixes))
	for i, s := range suffixes {
		quoted[i] = regexp.QuoteMeta(s)
		quoted[i] = strings.ReplaceAll(quoted[i], `, `, `,\s*`)
	}
	return regexp.MustCompile(`(?i),\s*(?:` + strings.Join(quoted, "|") + `)(?P<end>\s|,|$)`)
}

var (
	leadingComma  = regexp.MustCompile(`^\s*,\s*`)
	trailingComma = regexp.MustCompile(`\s*,\s*$`)
	innerComma    = regexp.MustCompile(`\s*,\s*`)
)

// CleanCompanyName strips legal-form suffixes such as ", Inc." from name.
// A nil matcher uses DefaultCompanySuffixes.
func CleanCompanyName(name string, suffixes *regexp.Regexp) string {
	if suffixes == nil {
		suffixes = compiledDefaultSuffixes
	}
	// suffixes can be stacked, e.g. "Foo, Digital, Inc."
	for {
		stripped := suffixes.ReplaceAllString(name, "${end}")
		if stripped == name {
			break
		}
		name = stripped
	}
	name = leadingComma.ReplaceAllString(name, "")
	name = trailingComma.ReplaceAllString(name, "")
	name = innerComma.ReplaceAllString(name, " ")
	return CollapseSpace(name)
}

var parenthetical = regexp.MustCompile(`[(（][^)）]*[)）]`)

var dayLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006年1月2日",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

var monthLayouts = []string{
	"2006-1",
	"2006/1",
	"2006年1月",
	"January 2006",
	"Jan 2006",
}

var yearLayouts = []string{
	"2006",
	"2006年",
}

// NormalizeDate coerces a human-written date into YYYY-MM-DD. A bare month
// resolves to its first day, a bare year to January 1st. Region annotations
// in parentheses such as "2010-07-16(中国大陆)" are ignored.
func NormalizeDate(s string) (string, bool) {
	s = parenthetical.ReplaceAllString(s, "")
	s = CollapseSpace(s)
	if s == "" {
		return "", false
	}
	for _, group := range [][]string{dayLayouts, monthLayouts, yearLayouts} {
		for _, layout := range group {
			t, err := time.Parse(layout, s)
			if err == nil {
				return t.Format(time.DateOnly), true
			}
		}
	}
	return "", false
}

// EarliestDate normalizes every value and returns the earliest one that
// parsed.
func EarliestDate(values []string) (string, bool) {
	earliest := ""
	for _, v := range values {
		date, ok := NormalizeDate(v)
		if !ok {
			continue
		}
		if earliest == "" || date < earliest {
			earliest = date
		}
	}
	return earliest, earliest != ""
}

// SplitList splits s on any of the separators, trimming items and dropping
// empty ones.
func SplitList(s string, separators ...string) []string {
	if len(separators) == 0 {
		separators = []string{"/", ",", "、"}
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		for _, sep := range separators {
			if strings.ContainsRune(sep, r) {
				return true
			}
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
