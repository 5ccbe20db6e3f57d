package chat

import (
	"context"
	"errors"

	"hotel-relay/internal/metrics"
	"hotel-relay/internal/pubsub"

	"github.com/rs/zerolog"
)

var ErrHubClosed = errors.New("hub closed")

type membership struct {
	client *Client
	rooms  []string
}

type directMessage struct {
	client  *Client
	payload []byte
}

// Hub owns room membership for the connections of this process and writes
// deliveries into their send buffers. All state is confined to Run.
type Hub struct {
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan membership
	deliver    chan pubsub.Delivery
	direct     chan directMessage
	quit       chan struct{}
	done       chan struct{}

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]map[string]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		deliver:    make(chan pubsub.Delivery),
		direct:     make(chan directMessage),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.closeTransport()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Join adds c to rooms. Once Join returns, every delivery handed to the hub
// afterwards sees the new membership.
func (h *Hub) Join(c *Client, rooms ...string) {
	select {
	case h.join <- membership{client: c, rooms: rooms}:
	case <-h.quit:
	}
}

// SendTo queues a frame for one connection if it is still registered.
func (h *Hub) SendTo(c *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: c, payload: payload}:
	case <-h.quit:
	}
}

// HandleDelivery is the broker subscription handler.
func (h *Hub) HandleDelivery(ctx context.Context, d pubsub.Delivery) error {
	select {
	case h.deliver <- d:
		return nil
	case <-h.quit:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run and disconnects every client. It is safe to call once.
func (h *Hub) Close() {
	close(h.quit)
	<-h.done
}

func (h *Hub) Run() {
	defer close(h.done)
	h.logger.Debug().Msg("hub loop started")

	for {
		select {
		case <-h.quit:
			h.logger.Info().Int("clients", len(h.clients)).Msg("hub shutting down, closing all connections")
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = make(map[string]struct{})
			metrics.RelayConnections.WithLabelValues(c.Transport).Inc()
			h.logger.Debug().Str("conn_id", c.ID).Str("transport", c.Transport).Int("clients", len(h.clients)).Msg("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case m := <-h.join:
			joined, ok := h.clients[m.client]
			if !ok {
				continue
			}
			for _, room := range m.rooms {
				members, ok := h.rooms[room]
				if !ok {
					members = make(map[*Client]struct{})
					h.rooms[room] = members
				}
				members[m.client] = struct{}{}
				joined[room] = struct{}{}
			}

		case dm := <-h.direct:
			if _, ok := h.clients[dm.client]; ok {
				h.send(dm.client, dm.payload)
			}

		case d := <-h.deliver:
			h.fanOut(d)
		}
	}
}

// fanOut writes d to the union of members of its rooms, so a connection that
// sits in several target rooms still receives one copy.
func (h *Hub) fanOut(d pubsub.Delivery) {
	seen := make(map[*Client]struct{})
	for _, room := range d.Rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup || c.ID == d.Except {
				continue
			}
			seen[c] = struct{}{}
			h.send(c, d.Payload)
		}
	}
}

func (h *Hub) send(c *Client, payload []byte) {
	select {
	case c.Send <- payload:
	default:
		h.logger.Warn().Str("conn_id", c.ID).Msg("send buffer full, evicting slow consumer")
		metrics.SlowConsumersEvicted.Inc()
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for room := range joined {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.clients, c)
	close(c.Send)
	c.closeTransport()
	metrics.RelayConnections.WithLabelValues(c.Transport).Dec()
	h.logger.Debug().Str("conn_id", c.ID).Int("clients", len(h.clients)).Msg("client removed")
}
