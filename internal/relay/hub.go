package relay

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// frame is one data message with its gorilla message type preserved.
type frame struct {
	kind int
	data []byte
}

// Peer represents a connected WebSocket peer.
type Peer struct {
	conn     *websocket.Conn
	addr     string
	outgoing chan frame
}

// Hub tracks connected peers and fans frames out between them.
type Hub struct {
	peers  map[*Peer]bool
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		peers:  make(map[*Peer]bool),
		logger: logger,
	}
}

// Register adds a peer to the hub.
func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true
}

// Unregister removes a peer from the hub. Once it returns, no broadcast
// can still be sending to the peer's outgoing channel.
func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

// PeerCount returns number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast queues f for every peer except the sender.
func (h *Hub) Broadcast(f frame, sender *Peer) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for p := range h.peers {
		if p == sender {
			continue
		}
		select {
		case p.outgoing <- f:
		default:
			h.logger.Warn().Str("peer", p.addr).Msg("Peer queue full, dropping frame")
		}
	}
}

// each calls fn for every registered peer.
func (h *Hub) each(fn func(*Peer)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		fn(p)
	}
}
