package transcript

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yegors/livecap/pkg/logger"
)

// Verdict reports what the reconciler did with a submitted result.
type Verdict struct {
	Accepted bool
	Merged   bool
	Reason   string // rejection or gate name when not accepted
	Entry    *Entry // copy of the appended or updated entry when accepted/merged
}

// Listener receives log mutations as they happen. Callbacks run on the
// mutating goroutine under the reconciler's lock; implementations must
// not call back into the reconciler.
type Listener interface {
	OnAppend(e Entry)
	OnUpdate(e Entry)
	OnInsert(after string, e Entry)
}

// Options tunes the reconciliation gates.
type Options struct {
	DedupLookback  int
	MergeWindow    time.Duration
	ContextTailMax int
	PrimaryLang    string
}

type channelState struct {
	lastAcceptedText string
	lastAcceptedAt   time.Time
	contextTail      string
	streamingText    strings.Builder
}

// Reconciler merges raw recognition results into an ordered,
// deduplicated transcript log. Overlapping windows systematically
// produce near-duplicates, partial repeats and hallucinations; the
// gates here are the correctness mechanism, not arrival order.
type Reconciler struct {
	mu       sync.RWMutex
	opts     Options
	filter   *HallucinationFilter
	entries  []Entry
	channels map[Channel]*channelState
	log      *logger.Logger

	listeners []Listener
}

// NewReconciler creates a reconciler with the given gates and filter.
func NewReconciler(opts Options, filter *HallucinationFilter, log *logger.Logger) *Reconciler {
	if opts.DedupLookback <= 0 {
		opts.DedupLookback = 12
	}
	if opts.MergeWindow <= 0 {
		opts.MergeWindow = 15 * time.Second
	}
	if opts.ContextTailMax <= 0 {
		opts.ContextTailMax = 200
	}
	return &Reconciler{
		opts:     opts,
		filter:   filter,
		channels: make(map[Channel]*channelState),
		log:      log.Named("reconciler"),
	}
}

// AddListener registers a mutation listener. Not safe to call while
// results are being submitted.
func (r *Reconciler) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

func (r *Reconciler) state(ch Channel) *channelState {
	s, ok := r.channels[ch]
	if !ok {
		s = &channelState{}
		r.channels[ch] = s
	}
	return s
}

// Submit runs a whole-segment recognition result through every gate and
// appends it to the log if it survives.
func (r *Reconciler) Submit(res Result) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitLocked(res)
}

func (r *Reconciler) submitLocked(res Result) Verdict {
	if reason := r.filter.Check(res.Text); reason != "" {
		r.log.Debug("rejected by hallucination filter",
			logger.String("reason", reason),
			logger.String("channel", string(res.Channel)))
		return Verdict{Reason: "hallucination:" + reason}
	}

	normalized := Normalize(res.Text)
	if normalized == "" {
		return Verdict{Reason: "empty"}
	}

	if r.isRecentDuplicate(normalized, res.Channel) {
		r.log.Debug("rejected as recent duplicate",
			logger.String("channel", string(res.Channel)))
		return Verdict{Reason: "duplicate"}
	}

	if entry, ok := r.mergeWithLastIfExpanding(normalized, res.Channel); ok {
		r.log.Debug("merged expansion into previous entry",
			logger.String("id", entry.ID))
		return Verdict{Accepted: true, Merged: true, Entry: &entry}
	}

	st := r.state(res.Channel)
	if skipByLastAccepted(normalized, st.lastAcceptedText) {
		r.log.Debug("rejected by last-accepted cross-check",
			logger.String("channel", string(res.Channel)))
		return Verdict{Reason: "cross-check"}
	}

	lang := res.Language
	if lang == "" {
		lang = DetectLanguage(normalized, r.opts.PrimaryLang)
	}
	entry := NewEntry(normalized, lang, res.Channel)
	r.appendLocked(entry, st)
	// The verdict carries a copy so callers never hold a pointer into
	// the shared log after the lock is released.
	accepted := r.entries[len(r.entries)-1]
	return Verdict{Accepted: true, Entry: &accepted}
}

func (r *Reconciler) appendLocked(entry Entry, st *channelState) {
	r.entries = append(r.entries, entry)
	st.lastAcceptedText = entry.Text
	st.lastAcceptedAt = entry.Timestamp
	st.contextTail = tail(entry.Text, r.opts.ContextTailMax)
	for _, l := range r.listeners {
		l.OnAppend(entry)
	}
}

// isRecentDuplicate checks the last N accepted entries on the channel
// for an exact match, and the most recent one for a whitespace-stripped
// match.
func (r *Reconciler) isRecentDuplicate(normalized string, ch Channel) bool {
	var recent []string
	for i := len(r.entries) - 1; i >= 0 && len(recent) < r.opts.DedupLookback; i-- {
		if r.entries[i].Channel == ch && !r.entries[i].IsTranslation {
			recent = append(recent, Normalize(r.entries[i].Text))
		}
	}
	if len(recent) == 0 {
		return false
	}
	for _, t := range recent {
		if t == normalized {
			return true
		}
	}
	// recent[0] is the most recently accepted entry.
	return stripSpaces(recent[0]) == stripSpaces(normalized)
}

// mergeWithLastIfExpanding treats a strictly longer text that starts
// with the last entry's text as a refinement of the same utterance and
// updates that entry in place. The returned entry is a copy.
func (r *Reconciler) mergeWithLastIfExpanding(normalized string, ch Channel) (Entry, bool) {
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	last := &r.entries[len(r.entries)-1]
	if last.Channel != ch || last.IsTranslation {
		return Entry{}, false
	}
	if time.Since(last.Timestamp) > r.opts.MergeWindow {
		return Entry{}, false
	}
	if len(normalized) > len(last.Text) && strings.HasPrefix(normalized, last.Text) {
		last.Text = normalized
		last.Timestamp = time.Now().UTC()
		st := r.state(ch)
		st.lastAcceptedText = normalized
		st.lastAcceptedAt = last.Timestamp
		st.contextTail = tail(normalized, r.opts.ContextTailMax)
		for _, l := range r.listeners {
			l.OnUpdate(*last)
		}
		return *last, true
	}
	return Entry{}, false
}

// skipByLastAccepted guards against the overlap region re-recognizing
// the same utterance as a separate window: equal, containing or
// contained text is dropped.
func skipByLastAccepted(normalized, lastText string) bool {
	if lastText == "" {
		return false
	}
	if normalized == lastText {
		return true
	}
	return strings.Contains(normalized, lastText) || strings.Contains(lastText, normalized)
}

// AppendDelta accumulates incremental partial text for live display.
// Deltas bypass the dedup and merge gates; all gates are re-applied by
// CommitStreaming.
func (r *Reconciler) AppendDelta(ch Channel, delta string) string {
	if delta == "" {
		return r.StreamingText(ch)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(ch)
	st.streamingText.WriteString(delta)
	return st.streamingText.String()
}

// StreamingText returns the text accumulated since the last commit.
func (r *Reconciler) StreamingText(ch Channel) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.channels[ch]; ok {
		return st.streamingText.String()
	}
	return ""
}

// CommitStreaming finalizes the accumulated delta text, running it
// through the full gate sequence before it becomes durable.
func (r *Reconciler) CommitStreaming(ch Channel) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(ch)
	text := st.streamingText.String()
	st.streamingText.Reset()
	if strings.TrimSpace(text) == "" {
		return Verdict{Reason: "empty"}
	}
	return r.submitLocked(Result{Text: text, Channel: ch})
}

// Patch updates an entry located by id: sets the detected language and
// clears the provisional flag. Returns false if the id is unknown.
func (r *Reconciler) Patch(id, language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			if language != "" {
				r.entries[i].Language = language
			}
			r.entries[i].Provisional = false
			r.entries[i].Timestamp = time.Now().UTC()
			for _, l := range r.listeners {
				l.OnUpdate(r.entries[i])
			}
			return true
		}
	}
	return false
}

// InsertTranslationAfter inserts a synthetic translation entry
// immediately after its source entry, located by id so that races with
// concurrent acceptance cannot misplace it. Returns false if the
// source id is unknown.
func (r *Reconciler) InsertTranslationAfter(sourceID string, e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == sourceID {
			e.IsTranslation = true
			e.Provisional = false
			e.Meta = &Meta{TranslationOf: sourceID}
			r.entries = append(r.entries, Entry{})
			copy(r.entries[i+2:], r.entries[i+1:])
			r.entries[i+1] = e
			for _, l := range r.listeners {
				l.OnInsert(sourceID, e)
			}
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the log in display order.
func (r *Reconciler) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the entry with the given id.
func (r *Reconciler) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			return r.entries[i], true
		}
	}
	return Entry{}, false
}

// ContextTail returns the trailing text of the last accepted entry on
// the channel, used as a prompt hint for the next recognition request.
func (r *Reconciler) ContextTail(ch Channel) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.channels[ch]; ok {
		return st.contextTail
	}
	return ""
}

// Restore seeds the log from persisted entries, rebuilding per-channel
// state from the newest entry on each channel.
func (r *Reconciler) Restore(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries[:0], entries...)
	r.channels = make(map[Channel]*channelState)
	for i := range r.entries {
		e := &r.entries[i]
		if e.IsTranslation {
			continue
		}
		st := r.state(e.Channel)
		st.lastAcceptedText = e.Text
		st.lastAcceptedAt = e.Timestamp
		st.contextTail = tail(e.Text, r.opts.ContextTailMax)
	}
}

// Len returns the number of entries in the log.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

var terminalPunctRun = regexp.MustCompile(`[。\.]{2,}$`)

// Normalize trims the text and collapses a trailing run of sentence
// terminators into a single one.
func Normalize(text string) string {
	t := strings.TrimSpace(text)
	return terminalPunctRun.ReplaceAllStringFunc(t, func(m string) string {
		return string([]rune(m)[0])
	})
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func stripSpaces(s string) string {
	return whitespaceRe.ReplaceAllString(s, "")
}

func tail(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}

var (
	hiraganaRe    = regexp.MustCompile(`[\x{3040}-\x{309f}]`)
	katakanaRe    = regexp.MustCompile(`[\x{30a0}-\x{30ff}]`)
	hanRe         = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]`)
	hangulRe      = regexp.MustCompile(`[\x{ac00}-\x{d7af}]`)
	cyrillicRe    = regexp.MustCompile(`[\x{0400}-\x{04ff}]`)
	traditionalRe = regexp.MustCompile(`[繁體覽擇檢測]`)
)

// DetectLanguage sniffs the writing system. Kana wins over Han because
// Japanese text mixes both; Han without kana is treated as Chinese.
func DetectLanguage(text, fallback string) string {
	switch {
	case hiraganaRe.MatchString(text) || katakanaRe.MatchString(text):
		return "ja"
	case hangulRe.MatchString(text):
		return "ko"
	case hanRe.MatchString(text):
		if traditionalRe.MatchString(text) {
			return "zh-TW"
		}
		return "zh"
	case cyrillicRe.MatchString(text):
		return "ru"
	}
	if fallback == "" {
		return "en"
	}
	return fallback
}
