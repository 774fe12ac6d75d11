package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	numberedSection = regexp.MustCompile(`^(?i:(\d+(\.\d+)*[.)]?|[ivxlc]+[.)]|section\s+\d+[a-z]?|article\s+\d+|part\s+[a-z0-9]+)\s+\S)`)

	// policySectionKeywords are headings that open a new section when they
	// appear alone on a short line.
	policySectionKeywords = []string{
		"exclusions",
		"what is not covered",
		"what is covered",
		"coverage",
		"covered items",
		"benefits",
		"schedule of benefits",
		"definitions",
		"limitations",
		"limits of liability",
		"deductibles",
		"deductible",
		"conditions",
		"general conditions",
		"claims procedure",
		"how to make a claim",
		"claims",
		"client obligations",
		"your obligations",
		"termination",
		"cancellation",
		"service network",
	}
)

const maxHeaderRunes = 80

// sentenceSpans splits on '.', '!' or '?' followed by whitespace and an
// uppercase letter. Each span includes its terminating punctuation.
func sentenceSpans(runes []rune) []span {
	var out []span
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		out = append(out, span{start: start, end: i + 1})
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, span{start: start, end: len(runes)})
	}
	return nonBlank(runes, out)
}

// paragraphSpans splits on blank lines (a newline, optional spaces or tabs,
// then another newline).
func paragraphSpans(runes []rune) []span {
	var out []span
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\n' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\r') {
			j++
		}
		if j >= len(runes) || runes[j] != '\n' {
			continue
		}
		out = append(out, span{start: start, end: i})
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, span{start: start, end: len(runes)})
	}
	return nonBlank(runes, out)
}

// sectionSpans splits the text at header lines. Each span runs from a header
// line to the next one and carries the header as its title. Text before the
// first header forms an untitled span.
func sectionSpans(runes []rune) []span {
	var out []span
	current := span{start: 0}
	lineStart := 0
	for lineStart < len(runes) {
		lineEnd := lineStart
		for lineEnd < len(runes) && runes[lineEnd] != '\n' {
			lineEnd++
		}
		if title, ok := headerTitle(string(runes[lineStart:lineEnd])); ok {
			if lineStart > current.start {
				current.end = lineStart
				out = append(out, current)
			}
			current = span{start: lineStart, title: title}
		}
		lineStart = lineEnd + 1
	}
	current.end = len(runes)
	out = append(out, current)
	return nonBlank(runes, out)
}

// headerTitle reports whether line looks like a section header and returns
// its cleaned-up title.
func headerTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len([]rune(trimmed)) > maxHeaderRunes {
		return "", false
	}

	if strings.HasPrefix(trimmed, "#") {
		title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		return title, title != ""
	}

	if numberedSection.MatchString(trimmed) && !endsSentence(trimmed) {
		return trimmed, true
	}

	if isAllCaps(trimmed) {
		return trimmed, true
	}

	key := strings.ToLower(strings.TrimRight(trimmed, ":"))
	for _, kw := range policySectionKeywords {
		if key == kw {
			return trimmed, true
		}
	}
	return "", false
}

// isAllCaps requires at least three letters, all of them uppercase.
func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") && strings.Count(s, " ") > 6
}

func nonBlank(runes []rune, spans []span) []span {
	out := spans[:0]
	for _, s := range spans {
		if !isBlank(runes, s.start, s.end) {
			out = append(out, s)
		}
	}
	return out
}
