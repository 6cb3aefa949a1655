package server

import (
	"net/http"
	"sync"

	"example.com/oclfilt/internal/report"
)

// Event is one element of a /filter response stream.
type Event struct {
	Type    string                `json:"type"`
	Station *report.StationRecord `json:"station,omitempty"`
	Summary *report.Summary       `json:"summary,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// EventWriter streams events as NDJSON or MessagePack and flushes after
// each one so clients see stations as they are decoded.
type EventWriter struct {
	mu      sync.Mutex
	rw      *report.RecordWriter
	flusher http.Flusher
}

func NewEventWriter(w http.ResponseWriter, format report.Format) *EventWriter {
	ew := &EventWriter{rw: report.NewRecordWriter(w, format)}
	if f, ok := w.(http.Flusher); ok {
		ew.flusher = f
	}
	return ew
}

// WriteEvent encodes ev and flushes the response.
func (w *EventWriter) WriteEvent(ev Event) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rw.Write(ev); err != nil {
		return err
	}
	if err := w.rw.Flush(); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
