// Package dashboard provides a small real-time WebSocket server for
// monitoring the shop's sync state.
//
// Connected clients receive record mutations, sync pass completions,
// and periodic status snapshots, so a front-of-shop display (or a
// second terminal) can show "N changes pending, last synced at T"
// without polling the CLI.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	syncengine "github.com/aliakbrhasan/stitchsync/internal/sync"
)

// EventType identifies a broadcast event.
type EventType string

const (
	// EventRecordUpdate signals a local record mutation or a pulled
	// remote change.
	EventRecordUpdate EventType = "record_update"

	// EventSyncComplete signals a finished sync pass, carrying its
	// Result.
	EventSyncComplete EventType = "sync_complete"

	// EventStatus carries a sync status snapshot.
	EventStatus EventType = "status"
)

// Event is one broadcast message.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into a broadcast event. Marshal failures
// produce an event with empty data rather than an error; the dashboard
// is advisory and must never fail a caller.
func NewEvent(t EventType, data interface{}) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	return Event{Type: t, Timestamp: time.Now(), Data: raw}
}

// StatusFunc supplies the current sync status for /status and the
// welcome message.
type StatusFunc func(ctx context.Context) (syncengine.Status, error)

// Config holds dashboard settings.
type Config struct {
	// Port to listen on. 0 picks a free port (useful in tests).
	Port int

	// Status supplies sync status snapshots. Nil disables /status.
	Status StatusFunc

	// Logger for server activity. Nil means log.Default().
	Logger *log.Logger
}

// Server broadcasts events to connected WebSocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	status   StatusFunc

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		status:  config.Status,
		clients: make(map[*websocket.Conn]struct{}),
		events:  make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start begins listening and broadcasting. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down, closing all client connections.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues an event for all connected clients. Never blocks:
// when the queue is full the event is dropped.
func (s *Server) Broadcast(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: event queue full, dropping event")
	}
}

// Addr returns the actual listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.events:
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
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

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", count)

	// Greet with a status snapshot when available.
	if s.status != nil {
		if status, err := s.status(r.Context()); err == nil {
			welcome := NewEvent(EventStatus, status)
			if data, err := json.Marshal(welcome); err == nil {
				writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = conn.Write(writeCtx, websocket.MessageText, data)
				cancel()
			}
		}
	}

	go s.readLoop(conn)
}

// readLoop drains client frames so pings work; client messages are
// otherwise ignored.
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
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", count)
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusNotFound)
		return
	}
	status, err := s.status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
