package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// events streams messages for one instance as server-sent events. The
// instance is registered for the lifetime of the stream.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := h.hub.Connect(r.URL.Query().Get("url"))
	defer h.hub.Disconnect(c.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: hello\ndata: {\"id\":%q}\n\n", c.ID())
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-c.Outbox():
			if !ok {
				return
			}
			b, err := json.Marshal(m)
			if err != nil {
				h.logger.WarnContext(ctx, "error encoding client message", "client", c.ID(), "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}
