package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
)

// Message is the envelope every broadcast is wrapped in
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	MessageReport     = "report"
	MessageChange     = "change"
	MessageDiagnostic = "diagnostic"
)

// Server broadcasts reports, identity changes and diagnostics to websocket
// clients. It also serves /health and any extra handlers mounted on it.
type Server struct {
	addr       string
	maxClients int
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	health     func() map[string]interface{}
	log        *logging.Logger
	mu         sync.RWMutex

	httpServer *http.Server
}

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// NewServer creates a server listening on addr. maxClients caps concurrent
// connections; zero means no cap.
func NewServer(addr string, maxClients int, log *logging.Logger) *Server {
	s := &Server{
		addr:       addr,
		log:        log,
		maxClients: maxClients,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			// read-only feed of local observations
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handle mounts an extra handler, such as /metrics
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// SetHealthSource adds fields to the /health response
func (s *Server) SetHealthSource(f func() map[string]interface{}) {
	s.health = f
}

// Handler exposes the server's routes, for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the hub and serves until Shutdown. It returns nil at once if
// Shutdown already ran.
func (s *Server) Start() error {
	go s.run()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.maxClients > 0 {
		ln = netutil.LimitListener(ln, s.maxClients)
	}

	s.log.Infof("Report server listening on %s", s.addr)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts only the broadcast hub, for servers mounted elsewhere
func (s *Server) Run() {
	go s.run()
}

// Shutdown stops accepting connections
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) run() {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.log.Debugf("Client connected. Total clients: %d", count)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			count := len(s.clients)
			s.mu.Unlock()
			s.log.Debugf("Client disconnected. Total clients: %d", count)

		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// slow client
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"clients": s.ClientCount(),
	}
	if s.health != nil {
		for k, v := range s.health() {
			response[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) publish(kind string, data interface{}) {
	payload, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		s.log.Errorf("Failed to marshal %s: %v", kind, err)
		return
	}

	select {
	case s.broadcast <- payload:
	default:
		s.log.Warnf("Broadcast channel full, dropping %s", kind)
	}
}

func (s *Server) Report(r *models.Report) {
	s.publish(MessageReport, r)
}

func (s *Server) Change(c models.Change) {
	s.publish(MessageChange, c)
}

func (s *Server) Diagnostic(d models.Diagnostic) {
	s.publish(MessageDiagnostic, d)
}

func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		// clients never send anything meaningful; reading surfaces close frames
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warnf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
