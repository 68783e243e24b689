package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/livecap/internal/transcript"
)

// RecordVersion is the current export format version.
const RecordVersion = 2

// Record is the versioned persistence envelope for the transcript log.
type Record struct {
	Version int                `json:"version"`
	Items   []transcript.Entry `json:"items"`
}

// legacyEntry is the unversioned pre-channel shape. Timestamps were
// serialized as ISO-8601 strings and channel did not exist yet.
type legacyEntry struct {
	ID            string           `json:"id"`
	Timestamp     string           `json:"timestamp"`
	Text          string           `json:"text"`
	Language      string           `json:"language"`
	Channel       string           `json:"channel,omitempty"`
	IsTranslation bool             `json:"isTranslation,omitempty"`
	Meta          *transcript.Meta `json:"meta,omitempty"`
}

// ExportRecord serializes the log into the versioned envelope.
func ExportRecord(entries []transcript.Entry) ([]byte, error) {
	data, err := json.Marshal(Record{Version: RecordVersion, Items: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript record: %w", err)
	}
	return data, nil
}

// ImportRecord parses a persisted transcript record. It accepts the
// versioned envelope and migrates from the legacy bare-array shape,
// defaulting a missing channel to primary. Corrupt input yields an
// empty log, never a load failure.
func ImportRecord(data []byte) []transcript.Entry {
	var rec Record
	if err := json.Unmarshal(data, &rec); err == nil && rec.Version > 0 {
		for i := range rec.Items {
			if rec.Items[i].Channel == "" {
				rec.Items[i].Channel = transcript.ChannelPrimary
			}
		}
		return rec.Items
	}

	var legacy []legacyEntry
	if err := json.Unmarshal(data, &legacy); err == nil {
		entries := make([]transcript.Entry, 0, len(legacy))
		for _, le := range legacy {
			ch := transcript.Channel(le.Channel)
			if ch == "" {
				ch = transcript.ChannelPrimary
			}
			ts, err := time.Parse(time.RFC3339, le.Timestamp)
			if err != nil {
				ts = time.Now().UTC()
			}
			entries = append(entries, transcript.Entry{
				ID:            le.ID,
				Timestamp:     ts,
				Text:          le.Text,
				Language:      le.Language,
				Channel:       ch,
				IsTranslation: le.IsTranslation,
				Meta:          le.Meta,
			})
		}
		return entries
	}

	return nil
}
