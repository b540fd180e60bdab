package service

import (
	"regexp"
	"strconv"
	"strings"
)

// ChapterNumberingPolicy maps a chapter number as teachers and students say it onto the number
// used in the textbook index. Subjects not listed keep their number.
type ChapterNumberingPolicy struct {
	offsets map[string]int
}

// DefaultChapterNumbering offsets Mathematics and Science chapters by 100.
func DefaultChapterNumbering() ChapterNumberingPolicy {
	return ChapterNumberingPolicy{offsets: map[string]int{
		"mathematics": 100,
		"math":        100,
		"maths":       100,
		"science":     100,
	}}
}

// IndexNumber returns the indexed chapter number for subject.
func (p ChapterNumberingPolicy) IndexNumber(subject string, chapter int) int {
	offset, ok := p.offsets[strings.ToLower(strings.TrimSpace(subject))]
	if !ok || chapter >= offset {
		return chapter
	}
	return offset + chapter
}

var (
	chapterReference = regexp.MustCompile(`(?i)(?:chapter|ch\.?)\s*(\d+)`)
	numberWords      = []struct {
		pattern *regexp.Regexp
		digit   string
	}{
		{regexp.MustCompile(`(?i)\bfirst\b`), "1"},
		{regexp.MustCompile(`(?i)\bsecond\b`), "2"},
		{regexp.MustCompile(`(?i)\bthird\b`), "3"},
		{regexp.MustCompile(`(?i)\bfourth\b`), "4"},
		{regexp.MustCompile(`(?i)\bfifth\b`), "5"},
		{regexp.MustCompile(`(?i)\bone\b`), "1"},
		{regexp.MustCompile(`(?i)\btwo\b`), "2"},
		{regexp.MustCompile(`(?i)\bthree\b`), "3"},
		{regexp.MustCompile(`(?i)\bfour\b`), "4"},
		{regexp.MustCompile(`(?i)\bfive\b`), "5"},
		{regexp.MustCompile(`(?i)\bsix\b`), "6"},
		{regexp.MustCompile(`(?i)\bseven\b`), "7"},
		{regexp.MustCompile(`(?i)\beight\b`), "8"},
		{regexp.MustCompile(`(?i)\bnine\b`), "9"},
		{regexp.MustCompile(`(?i)\bten\b`), "10"},
		{regexp.MustCompile(`(?i)\beleven\b`), "11"},
		{regexp.MustCompile(`(?i)\btwelve\b`), "12"},
	}
)

// ParseChapterReference extracts a chapter number from free text such as "chapter two" or
// "Ch. 3" and maps it through the policy.
func (p ChapterNumberingPolicy) ParseChapterReference(subject, text string) (int, bool) {
	normalized := text
	for _, word := range numberWords {
		normalized = word.pattern.ReplaceAllString(normalized, word.digit)
	}

	match := chapterReference.FindStringSubmatch(normalized)
	if match == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(normalized)); err == nil && n > 0 {
			return p.IndexNumber(subject, n), true
		}
		return 0, false
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return p.IndexNumber(subject, n), true
}
