package agents

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// ExtractJSON pulls a JSON payload out of raw model output. Models wrap
// answers in prose or code fences; we try, in order: the whole text, a
// ```json fence, any fence, then the first-{ to last-} substring.
// Candidates are only checked for syntactic validity.
func ExtractJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if gjson.Valid(trimmed) {
		return trimmed, true
	}

	for _, re := range []*regexp.Regexp{fencedJSONRe, fencedAnyRe} {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			candidate := strings.TrimSpace(m[1])
			if candidate != "" && gjson.Valid(candidate) {
				return candidate, true
			}
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := strings.TrimSpace(trimmed[start : end+1])
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}
