package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies which capture lane an entry belongs to.
type Channel string

const (
	ChannelPrimary   Channel = "primary"
	ChannelSecondary Channel = "secondary"
)

// Entry is the durable unit of the transcript log.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Text          string    `json:"text"`
	Language      string    `json:"language"`
	Channel       Channel   `json:"channel"`
	Provisional   bool      `json:"provisional,omitempty"`
	IsTranslation bool      `json:"isTranslation,omitempty"`
	Meta          *Meta     `json:"meta,omitempty"`
}

// Meta carries enrichment bookkeeping for synthetic entries.
type Meta struct {
	TranslationOf string `json:"translationOf,omitempty"`
}

// NewEntry builds a provisional entry for a freshly accepted recognition
// result.
func NewEntry(text, language string, channel Channel) Entry {
	return Entry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		Text:        text,
		Language:    language,
		Channel:     channel,
		Provisional: true,
	}
}

// Result is a raw recognition outcome submitted to the reconciler.
type Result struct {
	Text     string
	Language string
	Channel  Channel
}
