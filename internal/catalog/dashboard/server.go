// Package dashboard serves the catalog over HTTP: a JSON API for every
// UI-facing operation plus a WebSocket stream of write events.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/opendatath/catalog/internal/catalog/metrics"
	"github.com/opendatath/catalog/internal/catalog/service"
)

// MessageType names a broadcast event.
type MessageType string

const (
	MessageTypeDatasetRefreshed MessageType = "dataset_refreshed"
	MessageTypeRankingUpdated   MessageType = "ranking_updated"
	MessageTypeImportComplete   MessageType = "import_complete"
	MessageTypeStoreWiped       MessageType = "store_wiped"
	MessageTypeStats            MessageType = "stats"
)

// Message is one WebSocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server runs the HTTP API and fans messages out to WebSocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   *mux.Router

	catalog *service.Catalog
	metrics *metrics.Metrics

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on; 0 picks a free port
	Port int

	// Catalog backs the API. Required.
	Catalog *service.Catalog

	// Metrics is served on /metrics when set.
	Metrics *metrics.Metrics

	// Logger defaults to stderr with a "[dashboard] " prefix.
	Logger *log.Logger
}

// NewServer creates a Server and registers it as a listener on the
// catalog so writes are broadcast.
func NewServer(config *Config) (*Server, error) {
	if config == nil || config.Catalog == nil {
		return nil, errors.New("dashboard: catalog is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		catalog:   config.Catalog,
		metrics:   config.Metrics,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
	s.router = s.routes()
	config.Catalog.AddListener(NewHandler(s, logger))
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// Full paths on the root router so a method mismatch answers 405
	r.HandleFunc("/api/datasets", s.handleListDatasets).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}", s.handleGetDataset).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets/{id}/ranking", s.handleGetRanking).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}/ranking", s.handleSetRanking).Methods(http.MethodPut)
	r.HandleFunc("/api/rankings", s.handleRankings).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/organizations", s.handleOrganizations).Methods(http.MethodGet)
	r.HandleFunc("/api/file-types", s.handleFileTypes).Methods(http.MethodGet)
	r.HandleFunc("/api/compare", s.handleCompare).Methods(http.MethodGet)
	r.HandleFunc("/api/import", s.handleImport).Methods(http.MethodPost)
	r.HandleFunc("/api/store", s.handleWipe).Methods(http.MethodDelete)

	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	return r
}

// Handler returns the router, for mounting in tests or another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Refreshes wait on the remote catalog, so leave room past its timeout
		WriteTimeout: 30 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast queues msg for every connected client. It never blocks; when the
// queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Greet with current stats so the client can render before any event
	welcome := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if summary, err := s.catalog.Stats(r.Context(), 0); err == nil {
		welcome.Data, _ = json.Marshal(summary)
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "welcome failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop drains client frames until the connection drops.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", clientCount)
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
