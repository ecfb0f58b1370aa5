package server

import (
	"time"

	"github.com/oriongate/dicomdispatch/internal/dispatch"
)

// Observer adapts a Hub into a dispatch.Observer, so the actor driving
// dispatch cycles can feed this server's /events feed without importing
// net/http or gorilla/websocket itself.
func (h *Hub) Observer() dispatch.Observer {
	return func(ev dispatch.Event, err error) {
		out := CycleEvent{
			Kind:          string(ev.Kind),
			Level:         string(ev.Level),
			ResourceID:    ev.ResourceID,
			CorrelationID: ev.CorrelationID,
			Timestamp:     time.Now(),
		}
		if err != nil {
			out.Err = err.Error()
		}
		h.Broadcast(out)
	}
}
