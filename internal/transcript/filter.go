package transcript

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FilterRule ties a compiled pattern to a human-readable rejection reason.
// Rules are evaluated in order; the first match rejects the text.
type FilterRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// HallucinationFilter rejects recognition output that speech models are
// known to invent on near-silent or noisy windows.
type HallucinationFilter struct {
	minLength    int
	maxLength    int
	primaryLang  string
	rules        []FilterRule
	latinRules   []FilterRule
	latinWordRe  *regexp.Regexp
	dominanceMax float64
}

// defaultRules is the catalogue of filler, boilerplate and degenerate
// patterns observed in transcription output on quiet audio.
var defaultRules = []FilterRule{
	{"greeting-boilerplate", regexp.MustCompile(`(?i)^(hi|hello|hey|welcome).*(channel|video|subscribe|youtube|like|comment)`)},
	{"thanks-for-watching", regexp.MustCompile(`(?i)^thanks?\s+for\s+(watching|listening|subscribing)`)},
	{"subscribe-plea", regexp.MustCompile(`(?i)^(please|don't forget to).*(subscribe|like|comment|share)`)},
	{"engagement-plea", regexp.MustCompile(`(?i)^(if you|when you).*(like|enjoy).*(this video|this content)`)},
	{"caption-artifact", regexp.MustCompile(`(?i)字幕|subtitle|caption|transcript`)},
	{"spaced-single-letters", regexp.MustCompile(`(?i)^\s*([a-z]\s+){7,}[a-z]\s*$`)},
	{"letter-dash-run", regexp.MustCompile(`(?i)^([a-z]-){4,}`)},
	{"punctuation-only", regexp.MustCompile(`^[\s\-\.]{8,}$`)},
	{"vowel-run", regexp.MustCompile(`(?i)^[aeiou]{10,}$`)},
	{"consonant-run", regexp.MustCompile(`(?i)^[bcdfghjklmnpqrstvwxyz]{10,}$`)},
	{"digits-only", regexp.MustCompile(`^[0-9\s\-\.]{10,}$`)},
	{"symbols-only", regexp.MustCompile(`^[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]{5,}$`)},
	{"filler-word", regexp.MustCompile(`(?i)^(um|uh|ah|eh|oh)\s*$`)},
	{"bare-response", regexp.MustCompile(`(?i)^(yeah|yes|no|ok|okay)\s*$`)},
	{"bare-connective", regexp.MustCompile(`(?i)^(so|well|now|then)\s*$`)},
	{"three-short-words", regexp.MustCompile(`(?i)^[a-z]{1,3}\s+[a-z]{1,3}\s+[a-z]{1,3}$`)},
	{"overlong-word", regexp.MustCompile(`(?i)^[a-z]{15,}$`)},
}

// latinHallucinationRules flags common English idioms that appear when a
// CJK-configured model hallucinates on silence.
var latinHallucinationRules = []FilterRule{
	{"how-do-you", regexp.MustCompile(`(?i)how\s+do\s+you`)},
	{"undermine", regexp.MustCompile(`(?i)undermine`)},
	{"stretched-me", regexp.MustCompile(`(?i)meeeee`)},
	{"what-are-you", regexp.MustCompile(`(?i)what\s+are\s+you`)},
	{"can-you-help", regexp.MustCompile(`(?i)can\s+you\s+help`)},
	{"i-am-a", regexp.MustCompile(`(?i)i\s+am\s+a`)},
	{"this-is-a", regexp.MustCompile(`(?i)this\s+is\s+a`)},
	{"let-me-know", regexp.MustCompile(`(?i)let\s+me\s+know`)},
	{"thank-you", regexp.MustCompile(`(?i)thank\s+you`)},
	{"you-are-welcome", regexp.MustCompile(`(?i)you\s+are\s+welcome`)},
}

// NewHallucinationFilter builds a filter for the given length bounds and
// configured primary language. Extra rules are evaluated after the
// built-in catalogue.
func NewHallucinationFilter(minLength, maxLength int, primaryLang string, extra ...FilterRule) *HallucinationFilter {
	rules := make([]FilterRule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &HallucinationFilter{
		minLength:    minLength,
		maxLength:    maxLength,
		primaryLang:  primaryLang,
		rules:        rules,
		latinRules:   latinHallucinationRules,
		latinWordRe:  regexp.MustCompile(`\b[a-zA-Z]{3,}\b`),
		dominanceMax: 0.6,
	}
}

// Check returns a non-empty rejection reason when text looks
// hallucinated, and "" when it should pass to the next gate.
func (f *HallucinationFilter) Check(text string) string {
	n := utf8.RuneCountInString(text)
	if n < f.minLength {
		return "too-short"
	}
	if n > f.maxLength {
		return "too-long"
	}

	// Models configured for a CJK primary language hallucinate English
	// on silent windows far more often than genuine code switching
	// occurs.
	if f.primaryLang == "ja" || f.primaryLang == "zh" {
		if len(f.latinWordRe.FindAllString(text, 3)) > 2 {
			return "latin-in-cjk"
		}
		for _, r := range f.latinRules {
			if r.Pattern.MatchString(text) {
				return r.Name
			}
		}
	}

	if reason := checkRepetition(text); reason != "" {
		return reason
	}
	if f.charDominance(text) > f.dominanceMax {
		return "char-dominance"
	}

	for _, r := range f.rules {
		if r.Pattern.MatchString(text) {
			return r.Name
		}
	}
	return ""
}

// checkRepetition catches degenerate loops the model falls into: one
// character repeated nine or more times, a two-character unit repeated
// five or more times, a three-character unit repeated four or more.
func checkRepetition(text string) string {
	runes := []rune(text)
	for unit := 1; unit <= 3; unit++ {
		minRepeats := map[int]int{1: 9, 2: 5, 3: 4}[unit]
		if len(runes)%unit != 0 || len(runes)/unit < minRepeats {
			continue
		}
		head := string(runes[:unit])
		repeated := true
		for i := unit; i < len(runes); i += unit {
			if string(runes[i:i+unit]) != head {
				repeated = false
				break
			}
		}
		if repeated {
			return "repeated-unit"
		}
	}
	return ""
}

// charDominance returns the share of the text's runes taken by its most
// frequent ASCII letter. A single letter above 60% is noise, not speech.
// Only [a-z] counts; CJK text has no dominant letter in this sense.
func (f *HallucinationFilter) charDominance(text string) float64 {
	counts := make(map[rune]int)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			counts[r]++
		}
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	return float64(max) / float64(total)
}
