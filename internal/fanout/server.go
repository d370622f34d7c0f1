package fanout

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP front door: it upgrades WebSocket connections into
// fan-out clients and serves the static UI bundle for everything else.
type Server struct {
	hub        *Hub
	bridge     rxSink
	staticRoot string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer builds the HTTP server. staticRoot is the directory static
// files are served from; b receives decoded inbound commands.
func NewServer(addr, staticRoot string, hub *Hub, b rxSink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "fanout_http")

	s := &Server{hub: hub, bridge: b, staticRoot: staticRoot, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleBinaryUpgrade)
	mux.HandleFunc("/ws/ui", s.handleJSONUpgrade)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleStatic)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is
// called or an error occurs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("fanout http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleBinaryUpgrade(w http.ResponseWriter, r *http.Request) {
	s.upgrade(w, r, flavorBinary)
}

func (s *Server) handleJSONUpgrade(w http.ResponseWriter, r *http.Request) {
	s.upgrade(w, r, flavorJSON)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, kind flavor) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, kind, s.bridge, s.logger)
	s.hub.add(c)
	go func() {
		c.writePump()
		s.hub.remove(c)
	}()
	c.readPump()
}

// handleStatic serves files from staticRoot per the spec's rules: only
// GET/HEAD/POST/PUT/PATCH/DELETE are accepted, paths must start with "/"
// and must not contain "..", an upgrade handshake on this path falls
// through to the fan-out, unknown paths 404, and any other method on a
// known file is rejected with 400.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.upgrade(w, r, flavorBinary)
		return
	}

	path := r.URL.Path
	if !strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		http.Error(w, "method not allowed", http.StatusBadRequest)
		return
	}

	if path == "/" {
		path = "/index.html"
	}
	full := filepath.Join(s.staticRoot, filepath.FromSlash(path))

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		http.ServeFile(w, r, full)
	default:
		if _, err := os.Stat(full); err != nil {
			http.NotFound(w, r)
			return
		}
		// Files accept only GET/HEAD semantics; any other allowed HTTP
		// method on a concrete file path is a malformed request.
		http.Error(w, "method not allowed for static content", http.StatusBadRequest)
	}
}
