package transcript

import (
	"regexp"
	"strings"
	"testing"
)

func TestHallucinationFilterLengthBounds(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en")

	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"single char", "a", "too-short"},
		{"two chars", "ab", "too-short"},
		{"250 chars", strings.Repeat("x", 250), "too-long"},
		{"normal sentence", "The quarterly results were better than expected.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Check(tt.text); got != tt.reason {
				t.Errorf("Check(%q) = %q, want %q", tt.text, got, tt.reason)
			}
		})
	}
}

func TestHallucinationFilterDegenerateRepeats(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en")

	rejected := []string{
		"aaaaaaaaaa",        // single character x10
		"ababababab",        // two-char unit x5
		"abcabcabcabc",      // three-char unit x4
		"a b c d e f g h i", // spaced single letters
		"K-K-K-K-K",         // letter-dash run
		"aeiouaeioua",       // vowel run
		"........",          // punctuation only
		"1 2 3 4 5 6",       // digits only
	}
	for _, text := range rejected {
		if got := f.Check(text); got == "" {
			t.Errorf("Check(%q) passed, want rejection", text)
		}
	}
}

func TestHallucinationFilterUnpunctuatedSpeech(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en")

	// Recognition output rarely carries punctuation. Plain words
	// separated by spaces must not be confused with spaced-out
	// single letters.
	accepted := []string{
		"the committee approved the proposal without changes",
		"we should move the deadline to next friday",
		"let us review the action items from last week",
		"I think the second option is better",
	}
	for _, text := range accepted {
		if got := f.Check(text); got != "" {
			t.Errorf("Check(%q) = %q, want pass", text, got)
		}
	}

	// Genuine spelled-out letters still get caught.
	if got := f.Check("a b c d e f g h"); got != "spaced-single-letters" {
		t.Errorf("spelled-out letters gave %q, want spaced-single-letters", got)
	}
}

func TestHallucinationFilterBoilerplate(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en")

	rejected := []string{
		"Hello everyone, welcome to my channel",
		"Thanks for watching",
		"Please subscribe and like the video",
		"Subtitles by the community",
		"um",
		"okay",
	}
	for _, text := range rejected {
		if got := f.Check(text); got == "" {
			t.Errorf("Check(%q) passed, want rejection", text)
		}
	}
}

func TestHallucinationFilterCharDominance(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en")

	// 8 of 12 runes are "z", above the 60% dominance cutoff.
	if got := f.Check("zzz zzz zzba"); got == "" {
		t.Error("dominated text passed, want rejection")
	}

	// Dominance only looks at ASCII letters, so short CJK text with a
	// repeated ideograph is not noise by this measure.
	if got := f.Check("是是是"); got != "" {
		t.Errorf("Check(%q) = %q, want pass", "是是是", got)
	}
}

func TestHallucinationFilterLatinInCJK(t *testing.T) {
	zh := NewHallucinationFilter(3, 200, "zh")
	en := NewHallucinationFilter(3, 200, "en")

	// Three or more Latin words with a CJK primary language is the
	// classic silent-window hallucination shape.
	text := "thank you so much everyone"
	if got := zh.Check(text); got == "" {
		t.Errorf("Check(%q) with zh primary passed, want rejection", text)
	}

	if got := zh.Check("今天的会议从下午三点开始"); got != "" {
		t.Errorf("genuine Chinese text rejected: %q", got)
	}

	// The same idioms are fine when the primary language is English.
	if got := en.Check("thank you for joining the call today"); got != "" {
		t.Errorf("English text with en primary rejected: %q", got)
	}
}

func TestHallucinationFilterExtraRules(t *testing.T) {
	f := NewHallucinationFilter(3, 200, "en", FilterRule{
		Name:    "test-marker",
		Pattern: regexp.MustCompile(`(?i)^lorem ipsum`),
	})
	if got := f.Check("Lorem ipsum dolor sit amet"); got != "test-marker" {
		t.Errorf("extra rule not applied, got %q", got)
	}
}
