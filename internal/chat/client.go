package chat

import (
	"sync"

	"github.com/google/uuid"
)

const (
	TransportWebSocket = "websocket"
	TransportLongPoll  = "polling"
)

// Identity is what the relay knows about a connection before it joins.
// Staff is true only when a valid staff token was presented.
type Identity struct {
	Staff       bool
	Username    string
	DisplayName string
}

// Client is one live connection, whatever its transport. The hub is the only
// writer of Send and closes it when the client is removed.
type Client struct {
	ID        string
	Transport string
	Identity  Identity
	Send      chan []byte

	closeFn   func(*Client)
	closeOnce sync.Once

	mu     sync.Mutex
	name   string
	rooms  map[string]struct{}
	joined bool
}

func newClient(identity Identity, transport string, buffer int, closeFn func(*Client)) *Client {
	if closeFn == nil {
		closeFn = func(*Client) {}
	}
	return &Client{
		ID:        uuid.NewString(),
		Transport: transport,
		Identity:  identity,
		Send:      make(chan []byte, buffer),
		closeFn:   closeFn,
		rooms:     make(map[string]struct{}),
	}
}

func (c *Client) closeTransport() {
	c.closeOnce.Do(func() { c.closeFn(c) })
}

func (c *Client) markJoined(roomID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = true
	c.name = name
	c.rooms[roomID] = struct{}{}
}

func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Name is the display name chosen at the last join.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// CanAddress reports whether c may post, type or read history in roomID.
// Staff may address any room; guests only the rooms they joined.
func (c *Client) CanAddress(roomID string) bool {
	if c.Identity.Staff {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}
