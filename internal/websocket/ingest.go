package websocket

import (
	"encoding/json"

	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/pkg/logger"
)

// StreamingLog is the slice of the reconciler that streaming ingest
// mutates.
type StreamingLog interface {
	AppendDelta(ch transcript.Channel, delta string) string
	CommitStreaming(ch transcript.Channel) transcript.Verdict
}

// Enricher consumes accepted entries for asynchronous post-processing.
type Enricher interface {
	Enqueue(e transcript.Entry)
}

// inboundMessage is the envelope browser clients send for live
// recognizer text.
type inboundMessage struct {
	Type string `json:"type"`
	Data struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	} `json:"data"`
}

// Ingest routes inbound client messages carrying streaming recognition
// deltas into the transcript log and echoes the accumulated text back
// to all clients so every viewer sees the same live line.
type Ingest struct {
	server   *Server
	log      StreamingLog
	enricher Enricher
	logger   *logger.Logger
}

// NewIngest creates the inbound message handler. enricher may be nil;
// committed entries then keep their provisional flag.
func NewIngest(server *Server, log StreamingLog, enricher Enricher, lg *logger.Logger) *Ingest {
	return &Ingest{
		server:   server,
		log:      log,
		enricher: enricher,
		logger:   lg.Named("ws-ingest"),
	}
}

// Handle processes one raw inbound payload. Unknown message types and
// malformed payloads are dropped.
func (i *Ingest) Handle(payload []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Debug("Ignoring malformed client message", logger.Error(err))
		return
	}

	ch := transcript.Channel(msg.Data.Channel)
	if ch != transcript.ChannelPrimary && ch != transcript.ChannelSecondary {
		ch = transcript.ChannelPrimary
	}

	switch msg.Type {
	case "streaming_delta":
		if msg.Data.Text == "" {
			return
		}
		accumulated := i.log.AppendDelta(ch, msg.Data.Text)
		i.server.Broadcast(&Message{
			Type: "transcription_streaming",
			Data: map[string]interface{}{
				"channel": string(ch),
				"text":    accumulated,
			},
		})

	case "streaming_commit":
		verdict := i.log.CommitStreaming(ch)
		// Committed entries take the same enrichment path as upload
		// results, so their provisional flag gets cleared too.
		if verdict.Accepted && !verdict.Merged && i.enricher != nil {
			i.enricher.Enqueue(*verdict.Entry)
		}
		// Committed text arrives via the log listener when accepted;
		// clearing the live line is all that remains here.
		i.server.Broadcast(&Message{
			Type: "transcription_streaming",
			Data: map[string]interface{}{
				"channel": string(ch),
				"text":    "",
			},
		})
		if !verdict.Accepted && verdict.Reason != "" {
			i.logger.Debug("Streaming commit rejected",
				logger.String("channel", string(ch)),
				logger.String("reason", verdict.Reason))
		}

	default:
		i.logger.Debug("Unknown client message type", logger.String("type", msg.Type))
	}
}
