package parser

import (
	"regexp"
	"strings"
)

// Rule classifies a cleaned line as a heading at Level. Pattern may define
// the named groups "number" and "title".
type Rule struct {
	Level   int
	Name    string
	Pattern *regexp.Regexp
}

// Match is the heading extracted by the first matching rule.
type Match struct {
	Level  int
	Number string
	Title  string
	Rule   string
}

func rule(level int, name, pattern string) Rule {
	return Rule{Level: level, Name: name, Pattern: regexp.MustCompile(pattern)}
}

// Rulebook is tried strictly in order and the first match wins, so weak
// generic forms sit after the specific forms of the same level.
var Rulebook = []Rule{
	// Parts, volumes, madang.
	rule(1, "volume", `^\s*권\s*(?P<number>\d+)\s*(?P<title>.*)`),
	rule(1, "je_bu", `^\s*제\s*(?P<number>\d+)\s*부:?\s*(?P<title>.*)`),
	rule(1, "bu", `^\s*(?P<number>\d+)\s*부\.?\s*(?P<title>.*)`),
	rule(1, "bracket_part", `(?i)^\s*\[\s*PART\s*(?P<number>\d+)\s*\]\s*(?P<title>.*)`),
	rule(1, "part", `(?i)^\s*(?:Part|부)\s*(?P<number>[IVX\d]+)\.?\s+(?P<title>.*)`),
	rule(1, "madang", `^\s*(?P<number>첫째|둘째|셋째|넷째|다섯째|여섯째|일곱째|여덟째|아홉째|열째)\s*마당\s*\|?\s*(?P<title>.*)`),
	rule(1, "roman", `^\s*(?P<number>[ⅠⅡⅢⅣⅤⅥⅦⅧⅨⅩⅪⅫIVX]+)\s*\.?\s+(?P<title>.*)`),
	rule(1, "capital_letter", `^\s*(?P<number>[A-Z])\s+(?P<title>\S.*)`),
	rule(1, "section_lesson", `(?i)^\s*(?:Section|STAGE|Lesson|레슨)\s+(?P<number>\d+)\s*:?\s*(?P<title>.*)`),

	// Chapters.
	rule(2, "chapter", `(?i)^\s*(?:Chapter|Chpater)\s*(?P<number>\d+)\.?\s*(?P<title>.*)`),
	rule(2, "boxed_jang", `^\s*▣\s*(?P<number>\d+)\s*장:?\s*(?P<title>.*)`),
	rule(2, "paren_jang", `^\s*\(\s*(?P<number>\d+)\s*장\s*\):?\s*(?P<title>.*)`),
	rule(2, "jang", `^\s*(?P<number>\d+)\s*장\.?:?\s*(?P<title>.*)`),
	rule(2, "je_jang", `^\s*제\s*(?P<number>\d+)\s*장\.?:?\s*(?P<title>.*)`),
	rule(2, "circled", `^\s*(?P<number>[①-⑳])\s*(?P<title>.*)`),
	rule(2, "numbered", `^\s*(?P<number>\d+)\.\s*(?P<title>[^.\d].*)`),

	// Sections.
	rule(3, "jeol", `^\s*(?P<number>\d+)\s*절\.?\s*(?P<title>.*)`),
	rule(3, "bracket_number", `^\s*\[(?P<number>\d+)\]\s+(?P<title>.*)`),
	rule(3, "je_hoe", `^\s*제\s*(?P<number>\d+)\s*회:?\s+(?P<title>.*)`),
	rule(3, "number_title", `^\s*(?P<number>\d+)\s+(?P<title>[a-zA-Z_가-힣].*)`),

	// Decimal numbering, longest first.
	rule(4, "decimal4", `^\s*(?P<number>\d+\.\d+\.\d+\.\d+)\.?\s+(?P<title>.*)`),
	rule(4, "decimal3", `^\s*(?P<number>\d+\.\d+\.\d+)\.?\s+(?P<title>.*)`),
	rule(4, "decimal2", `^\s*(?P<number>\d+\.\d+)\.?\s+(?P<title>.*)`),
	rule(4, "hyphenated", `^\s*(?P<number>[\p{L}\p{N}_]+-[\p{L}\p{N}_]+)\s*:?\s+(?P<title>.*)`),

	// Sub-items.
	rule(5, "paren_suffix", `^\s*(?P<number>\d+)\)\s+(?P<title>.*)`),
	rule(6, "paren_number", `^\s*\((?P<number>\d+)\)\s+(?P<title>.*)`),
	rule(7, "paren_letter", `^\s*\((?P<number>[a-zA-Z])\)\s+(?P<title>.*)`),
}

// MatchHeading returns the first Rulebook match for a cleaned line.
func MatchHeading(line string) (Match, bool) {
	for _, r := range Rulebook {
		groups := r.Pattern.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		return Match{
			Level:  r.Level,
			Number: group(r.Pattern, groups, "number"),
			Title:  group(r.Pattern, groups, "title"),
			Rule:   r.Name,
		}, true
	}
	return Match{}, false
}

func group(re *regexp.Regexp, groups []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(groups) {
		return ""
	}
	return strings.TrimSpace(groups[idx])
}
