package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/groundctx/ragengine/internal/core/domain"
)

// Contractions are expanded before any matching because both keyword and
// embedding matching fail silently on contracted forms. Longer forms first so
// "what's" never half-matches inside "somewhat's".
var contractionPairs = []struct {
	from string
	to   string
}{
	{"what's", "what is"},
	{"where's", "where is"},
	{"who's", "who is"},
	{"how's", "how is"},
	{"when's", "when is"},
	{"there's", "there is"},
	{"here's", "here is"},
	{"that's", "that is"},
	{"it's", "it is"},
	{"isn't", "is not"},
	{"aren't", "are not"},
	{"wasn't", "was not"},
	{"weren't", "were not"},
	{"don't", "do not"},
	{"doesn't", "does not"},
	{"didn't", "did not"},
	{"can't", "cannot"},
	{"couldn't", "could not"},
	{"won't", "will not"},
	{"wouldn't", "would not"},
	{"shouldn't", "should not"},
	{"haven't", "have not"},
	{"hasn't", "has not"},
	{"hadn't", "had not"},
	{"i'm", "i am"},
	{"i've", "i have"},
	{"i'd", "i would"},
	{"you're", "you are"},
	{"you've", "you have"},
	{"we're", "we are"},
	{"we've", "we have"},
	{"they're", "they are"},
	{"they've", "they have"},
	{"let's", "let us"},
}

// Ordered document-lookup patterns; first match wins and the captured group
// becomes the document hint.
var lookupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^show\s+me\s+(?:my\s+|the\s+)?(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^open\s+(?:my\s+|the\s+)?(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^what\s+is\s+in\s+(?:my\s+|the\s+)?(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^what\s+does\s+(?:my\s+|the\s+)?(.+?)\s+(?:say|contain)[?.!]*$`),
	regexp.MustCompile(`(?i)^(?:use|read|pull\s+up)\s+(?:my\s+|the\s+)?(.+?)\s+(?:runbook|playbook|doc|document|file|notes?)[?.!]*$`),
	regexp.MustCompile(`(?i)^(?:give|get)\s+me\s+(?:my\s+|the\s+)?(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^(?:display|list)\s+(?:the\s+contents?\s+of\s+)?(?:my\s+|the\s+)?(.+?)[?.!]*$`),
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "am": {}, "do": {}, "does": {}, "did": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "where": {}, "when": {},
	"why": {}, "how": {}, "in": {}, "on": {}, "at": {}, "of": {}, "to": {},
	"for": {}, "from": {}, "by": {}, "with": {}, "about": {}, "into": {},
	"and": {}, "or": {}, "not": {}, "no": {}, "my": {}, "me": {}, "i": {},
	"you": {}, "your": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "can": {}, "could": {}, "will": {}, "would": {},
	"should": {}, "have": {}, "has": {}, "had": {}, "there": {}, "here": {},
	"please": {}, "show": {}, "tell": {}, "give": {}, "get": {}, "us": {},
}

// Preprocess is the deterministic first stage: normalize, detect lookup
// intent, extract content words. It never fails; an unmatched query simply
// reports IsDocumentRequest=false.
func Preprocess(query string) domain.PreprocessResult {
	normalized := normalizeQuery(query)

	result := domain.PreprocessResult{
		NormalizedQuery: normalized,
		SearchTerms:     contentWords(normalized),
	}

	for _, pattern := range lookupPatterns {
		match := pattern.FindStringSubmatch(normalized)
		if match == nil {
			continue
		}
		hint := strings.TrimSpace(match[1])
		if hint == "" {
			continue
		}
		result.IsDocumentRequest = true
		result.DocumentHint = hint
		break
	}

	return result
}

// ExpandContractions is idempotent: expanded forms contain no apostrophes, so
// a second pass finds nothing to replace.
func ExpandContractions(s string) string {
	lower := strings.ToLower(s)
	for _, pair := range contractionPairs {
		lower = replaceWholeWord(lower, pair.from, pair.to)
	}
	// Generic possessive fallback stays untouched: "rajiv's notes" keeps its
	// owner token after apostrophe stripping below.
	return lower
}

func normalizeQuery(query string) string {
	expanded := ExpandContractions(query)
	expanded = strings.ReplaceAll(expanded, "'", "")
	return strings.Join(strings.Fields(expanded), " ")
}

func contentWords(s string) []string {
	tokens := splitAlphaNumLower(s)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func replaceWholeWord(s, from, to string) string {
	if !strings.Contains(s, from) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], from) && boundaryBefore(s, i) && boundaryAfter(s, i+len(from)) {
			b.WriteString(to)
			i += len(from)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '\''
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
