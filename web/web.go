// Package web serves a small live-event dashboard over the verbs a
// client.Sync/Async connection issues, backed by a monitor.Broker.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yakdb/yakdb-go/monitor"
)

//go:embed static
var staticFS embed.FS

// Server serves the event dashboard and its SSE feed.
type Server struct {
	httpServer *http.Server
	broker     *monitor.Broker
}

// New creates a Server backed by b. Events published to b after a
// client subscribes are streamed to it; events published before are
// not replayed.
func New(b *monitor.Broker) *Server {
	s := &Server{broker: b}

	mux := http.NewServeMux()
	sub, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /", http.FileServer(http.FS(sub)))
	mux.HandleFunc("GET /api/events", s.handleSSE)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve starts the HTTP server on lis.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type eventJSON struct {
	Verb       string `json:"verb"`
	Table      uint32 `json:"table,omitempty"`
	HasTable   bool   `json:"has_table"`
	StartTime  string `json:"start_time"`
	DurationMs float64 `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func eventToJSON(ev monitor.Event) eventJSON {
	out := eventJSON{
		Verb:       ev.Verb.String(),
		Table:      ev.Table,
		HasTable:   ev.HasTable,
		StartTime:  ev.StartTime.Format(time.RFC3339Nano),
		DurationMs: float64(ev.Duration.Microseconds()) / 1000,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush() // send headers immediately

	ch, id := s.broker.Subscribe(64)
	defer s.broker.Unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(eventToJSON(ev))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\ndata: %s\n\n", uuid.New().String(), data)
			flusher.Flush()
		}
	}
}
