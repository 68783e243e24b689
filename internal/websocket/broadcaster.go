package websocket

import (
	"github.com/yegors/livecap/internal/transcript"
)

// Broadcaster forwards transcript log mutations to websocket clients.
type Broadcaster struct {
	server *Server
}

// NewBroadcaster wraps the server as a transcript listener.
func NewBroadcaster(server *Server) *Broadcaster {
	return &Broadcaster{server: server}
}

var _ transcript.Listener = (*Broadcaster)(nil)

// OnAppend broadcasts a newly accepted entry.
func (b *Broadcaster) OnAppend(e transcript.Entry) {
	b.server.Broadcast(&Message{Type: "transcription_new", Data: e})
}

// OnUpdate broadcasts an in-place entry change (expansion merge or
// enrichment patch).
func (b *Broadcaster) OnUpdate(e transcript.Entry) {
	b.server.Broadcast(&Message{Type: "transcription_update", Data: e})
}

// OnInsert broadcasts a translation entry spliced in after its source.
func (b *Broadcaster) OnInsert(after string, e transcript.Entry) {
	b.server.Broadcast(&Message{
		Type: "transcription_insert",
		Data: map[string]interface{}{
			"after": after,
			"entry": e,
		},
	})
}
