package enrichment

import (
	"testing"
)

func newParseClient(t *testing.T) *OpenAIClient {
	t.Helper()
	return &OpenAIClient{
		config: Config{PrimaryLanguage: "zh", SecondaryLanguage: "ja"},
		logger: testLogger(t).Named("test"),
	}
}

func TestParseStrictJSON(t *testing.T) {
	c := newParseClient(t)
	a := c.parse(`{"originalLanguage":"ja","isNotPrimaryLanguage":true,"primaryTranslation":"会议开始"}`, "zh")
	if a.OriginalLanguage != "ja" || !a.IsNotPrimaryLanguage || a.PrimaryTranslation != "会议开始" {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestParseNullTranslation(t *testing.T) {
	c := newParseClient(t)
	a := c.parse(`{"originalLanguage":"zh","isNotPrimaryLanguage":false,"primaryTranslation":null}`, "zh")
	if a.OriginalLanguage != "zh" || a.IsNotPrimaryLanguage || a.PrimaryTranslation != "" {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestParseExtractsFromWrappedJSON(t *testing.T) {
	c := newParseClient(t)
	// gjson still finds the fields when strict unmarshal fails on the
	// trailing prose.
	content := `{"originalLanguage":"ja","isNotPrimaryLanguage":true,"primaryTranslation":"翻译"} as requested`
	a := c.parse(content, "zh")
	if a.OriginalLanguage != "ja" {
		t.Errorf("originalLanguage = %q, want ja", a.OriginalLanguage)
	}
	if a.PrimaryTranslation != "翻译" {
		t.Errorf("primaryTranslation = %q", a.PrimaryTranslation)
	}
}

func TestParseFallbackToHint(t *testing.T) {
	c := newParseClient(t)

	a := c.parse(`not json at all`, "ja")
	if a.OriginalLanguage != "ja" {
		t.Errorf("originalLanguage = %q, want hint ja", a.OriginalLanguage)
	}
	if !a.IsNotPrimaryLanguage {
		t.Error("hint differs from primary, want isNotPrimaryLanguage true")
	}
	if a.PrimaryTranslation != "" {
		t.Error("fallback must not invent a translation")
	}

	a = c.parse(`garbage`, "zh")
	if a.IsNotPrimaryLanguage {
		t.Error("hint equals primary, want isNotPrimaryLanguage false")
	}
}
