// Package relay implements a WebSocket relay: every data frame received
// from one peer is forwarded, with its text or binary kind preserved, to
// all other connected peers.
package relay

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 5 * time.Second
	drainTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// Server accepts WebSocket peers and relays their frames through a Hub.
type Server struct {
	address  string
	listener net.Listener
	server   *http.Server
	hub      *Hub
	logger   zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a relay that will listen on address.
func New(address string, logger zerolog.Logger) *Server {
	return &Server{
		address: address,
		hub:     NewHub(logger),
		logger:  logger,
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}
	return nil
}

// Serve accepts peers until Stop is called. Listen must have succeeded.
func (s *Server) Serve() error {
	s.logger.Info().Str("addr", s.Addr()).Msg("Relay started")
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay stopped: %w", err)
	}
	return nil
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop sends every peer a "going away" close frame, waits briefly for the
// peers to answer, and then drops whatever connections remain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			s.server.Close()
		}
		if s.listener != nil {
			s.listener.Close()
		}

		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		s.hub.each(func(p *Peer) {
			_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		})

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(drainTimeout):
			s.logger.Warn().Int("peers", s.hub.PeerCount()).Msg("Peers did not close in time")
			s.hub.each(func(p *Peer) { p.conn.Close() })
			<-done
		}
		s.logger.Info().Msg("Relay stopped")
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.hub.PeerCount()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	p := &Peer{
		conn:     conn,
		addr:     r.RemoteAddr,
		outgoing: make(chan frame, 16),
	}
	s.hub.Register(p)
	s.logger.Info().Str("peer", p.addr).Msg("Peer connected")

	s.wg.Add(2)
	go s.readLoop(p)
	go s.writeLoop(p)
}

func (s *Server) readLoop(p *Peer) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(p)
		close(p.outgoing)
		s.logger.Info().Str("peer", p.addr).Msg("Peer disconnected")
	}()

	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Str("peer", p.addr).Msg("WebSocket error")
			}
			return
		}
		s.logger.Debug().Str("peer", p.addr).Int("size", len(data)).Msg("Relaying frame")
		s.hub.Broadcast(frame{kind: kind, data: data}, p)
	}
}

func (s *Server) writeLoop(p *Peer) {
	defer s.wg.Done()
	defer p.conn.Close()

	for f := range p.outgoing {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(f.kind, f.data); err != nil {
			s.logger.Warn().Err(err).Str("peer", p.addr).Msg("Failed to send frame")
			// Keep draining so the read loop can finish.
			for range p.outgoing {
			}
			return
		}
	}
}
