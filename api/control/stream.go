package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// stream sends every status record as a server-sent event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if s.d.StatusBus == nil {
		writeError(w, http.StatusNotFound, errors.New("status stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	sub := s.d.StatusBus.SubscribeSize(32)
	defer s.d.StatusBus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if st, ok := s.d.Controller.Status(); ok {
		if err := writeEvent(w, st); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.cfg.keepAlive())
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-sub:
			if !ok {
				return
			}
			if err := writeEvent(w, st); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", b)
	return err
}
