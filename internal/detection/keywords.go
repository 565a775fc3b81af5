package detection

import (
	"regexp"
	"strings"
)

// substringMatches returns the phrases found in text as case-insensitive
// substrings, in list order and without duplicates.
func substringMatches(text string, phrases []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// wordList matches whole words or phrases, so "cure" does not fire on
// "secure" and "now" does not fire on "know".
type wordList struct {
	phrases []string
	re      *regexp.Regexp
}

func newWordList(phrases ...string) wordList {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return wordList{
		phrases: phrases,
		re:      regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// matches returns the distinct phrases present in text, lower-cased, in
// order of first appearance.
func (w wordList) matches(text string) []string {
	hits := w.re.FindAllString(text, -1)
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(hits))
	var found []string
	for _, h := range hits {
		h = strings.ToLower(h)
		if !seen[h] {
			seen[h] = true
			found = append(found, h)
		}
	}
	return found
}

func (w wordList) any(text string) bool {
	return w.re.MatchString(text)
}
