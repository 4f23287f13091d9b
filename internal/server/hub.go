package server

import "sync"

// Hub tracks live connections and enforces the connection limits.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// Connection limiting, checked before a connection is upgraded or served
	connMu        sync.Mutex
	ipConns       map[string]int
	totalConns    int
	maxConnsPerIP int
	maxTotalConns int
}

// NewHub creates a hub. Zero limits disable the corresponding check.
func NewHub(maxConnsPerIP, maxTotalConns int) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		ipConns:       make(map[string]int),
		maxConnsPerIP: maxConnsPerIP,
		maxTotalConns: maxTotalConns,
	}
}

// TryConnect reserves a connection slot for ip.
func (h *Hub) TryConnect(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.maxTotalConns > 0 && h.totalConns >= h.maxTotalConns {
		return false
	}
	if h.maxConnsPerIP > 0 && h.ipConns[ip] >= h.maxConnsPerIP {
		return false
	}
	h.ipConns[ip]++
	h.totalConns++
	return true
}

// TrackDisconnect releases a slot taken by TryConnect.
func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// unregister drops c and stops its write loop. Late sends from a tick
// already in flight are discarded by SendRaw.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.shutdown()
}

// CloseAll closes every live connection. Their read loops then unwind
// through the normal disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count.
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
