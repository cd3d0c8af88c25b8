// Package web provides the HTTP status page and the provisioning portal.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/smartmeter/internal/status"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownGrace     = 2 * time.Second
)

// Server is the HTTP listener behind both the status page and the portal.
type Server struct {
	httpServer *http.Server
}

func newServer(addr string, h http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
}

// New creates the read-only status server for tracker.
func New(addr string, tracker *status.Tracker) *Server {
	return newServer(addr, statusHandler(tracker))
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

// statusHandler serves the meter page at / and /index.html, and the same
// snapshot as JSON at /index.json.
func statusHandler(tracker *status.Tracker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		writePage(w, http.StatusOK, indexTmpl, indexData(tracker.Snapshot()))
	})
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(status.FormatJSON(tracker.Snapshot()))
	})
	return mux
}

func writePage(w http.ResponseWriter, code int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := tmpl.Execute(w, data); err != nil {
		slog.Debug("render page", "page", tmpl.Name(), "error", err)
	}
}
