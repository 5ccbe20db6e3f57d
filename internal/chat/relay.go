package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"hotel-relay/internal/auth"
	"hotel-relay/internal/domain"
	"hotel-relay/internal/logging"
	"hotel-relay/internal/metrics"
	"hotel-relay/internal/models"
	"hotel-relay/internal/pubsub"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	systemSenderID   = "system"
	systemSenderName = "System"
	defaultGuestName = "Guest"
	maxNameLength    = 64
)

type Config struct {
	HistoryLimit int
	StoreTimeout time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
	// SendBuffer is the per-connection outbound queue; a connection whose
	// queue is full is evicted.
	SendBuffer int
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 20 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

// Relay accepts guest and staff connections, persists their messages and fans
// them out to rooms through the broker.
type Relay struct {
	hub      *Hub
	store    repository.MessageRepo
	broker   pubsub.Broker
	issuer   *auth.Issuer
	cfg      Config
	upgrader websocket.Upgrader
	sessions *sessionRegistry
	logger   zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRelay(
	store repository.MessageRepo,
	broker pubsub.Broker,
	issuer *auth.Issuer,
	cfg Config,
	checkOrigin func(*http.Request) bool,
	logger zerolog.Logger,
) *Relay {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		hub:    NewHub(logging.Component(logger, "hub")),
		store:  store,
		broker: broker,
		issuer: issuer,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sessions: newSessionRegistry(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the hub and subscribes it to the broker. It returns once
// deliveries can be received.
func (r *Relay) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	go r.hub.Run()

	if err := r.broker.Subscribe(r.ctx, r.hub.HandleDelivery); err != nil {
		r.cancel()
		r.hub.Close()
		return fmt.Errorf("subscribe relay hub: %w", err)
	}
	r.logger.Info().
		Int("history_limit", r.cfg.HistoryLimit).
		Dur("ping_interval", r.cfg.PingInterval).
		Dur("ping_timeout", r.cfg.PingTimeout).
		Msg("relay started")
	return nil
}

// Stop disconnects every client and waits for pending history fetches.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.hub.Close()
		r.wg.Wait()
		r.logger.Info().Msg("relay stopped")
	})
}

// Connect registers a new connection with the hub. closeFn tears the
// transport down and is called once when the hub drops the client.
func (r *Relay) Connect(identity Identity, transport string, closeFn func(*Client)) *Client {
	c := newClient(identity, transport, r.cfg.SendBuffer, closeFn)
	r.hub.Register(c)
	r.logger.Info().
		Str("conn_id", c.ID).
		Str("transport", transport).
		Bool("staff", identity.Staff).
		Msg("client connected")
	return c
}

// Disconnect removes c from every room. Nothing is announced to the rooms.
func (r *Relay) Disconnect(c *Client) {
	r.hub.Unregister(c)
	r.logger.Info().Str("conn_id", c.ID).Msg("client disconnected")
}

// Identify derives the connection identity from the request credential.
// Only a valid staff token makes a connection staff.
func (r *Relay) Identify(req *http.Request) Identity {
	claims, err := r.issuer.StaffFromRequest(req)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			r.logger.Debug().Err(err).Msg("relay token rejected, connecting as guest")
		}
		return Identity{}
	}
	return Identity{Staff: true, Username: claims.Username, DisplayName: claims.DisplayName}
}

// Dispatch handles one inbound frame from c. Bad input is answered with an
// error event and never closes the connection.
func (r *Relay) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.sendError(c, "malformed frame")
		return
	}
	metrics.RelayEvents.WithLabelValues(string(env.Event)).Inc()

	switch env.Event {
	case types.EventJoinRoom:
		var p types.JoinRoomPayload
		if !r.decode(c, env, &p) {
			return
		}
		r.handleJoin(ctx, c, p)

	case types.EventSendMessage:
		var p types.SendMessagePayload
		if !r.decode(c, env, &p) {
			return
		}
		r.handleSend(ctx, c, p)

	case types.EventTyping:
		var p types.TypingPayload
		if !r.decode(c, env, &p) {
			return
		}
		r.handleTyping(ctx, c, p)

	case types.EventFetchHistory:
		var p types.FetchHistoryPayload
		if !r.decode(c, env, &p) {
			return
		}
		r.handleFetchHistory(ctx, c, p)

	default:
		r.sendError(c, fmt.Sprintf("unknown event %q", env.Event))
	}
}

func (r *Relay) decode(c *Client, env types.Envelope, v any) bool {
	if len(env.Data) == 0 {
		r.sendError(c, fmt.Sprintf("%s: missing data", env.Event))
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		r.sendError(c, fmt.Sprintf("%s: invalid data", env.Event))
		return false
	}
	return true
}

func (r *Relay) handleJoin(ctx context.Context, c *Client, p types.JoinRoomPayload) {
	roomID := strings.TrimSpace(p.RoomID)
	staff := c.Identity.Staff

	if roomID == "" && staff {
		roomID = StaffRoom
	}
	if roomID == "" {
		r.sendError(c, "roomId is required")
		return
	}
	if !staff && IsReserved(roomID) {
		r.sendError(c, "room is reserved for staff")
		return
	}

	name := r.resolveName(c, p.UserName)
	c.markJoined(roomID, name)
	r.hub.Join(c, JoinRooms(roomID, staff)...)

	r.logger.Info().
		Str("conn_id", c.ID).
		Str("room_id", roomID).
		Str("name", name).
		Bool("staff", staff).
		Msg("client joined room")

	if staff {
		r.sendHistoryAsync(ctx, c, "")
		return
	}

	// History is read before the announcement is stored so the joiner only
	// receives the announcement live.
	r.sendHistory(ctx, c, roomID)
	announcement := &models.Message{
		RoomID: roomID,
		Sender: models.Sender{ID: systemSenderID, Name: systemSenderName},
		Body:   fmt.Sprintf("%s joined the chat", name),
	}
	r.persistAndBroadcast(ctx, announcement, AnnounceRooms(roomID), "system")
}

func (r *Relay) handleSend(ctx context.Context, c *Client, p types.SendMessagePayload) {
	if !c.Joined() {
		r.sendError(c, "join a room before sending messages")
		return
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" || !c.CanAddress(roomID) {
		r.sendError(c, "not a member of this room")
		return
	}
	body := strings.TrimSpace(p.Message)
	if body == "" {
		return
	}

	kind := "guest"
	if c.Identity.Staff {
		kind = "staff"
	}
	msg := &models.Message{
		RoomID: roomID,
		Sender: models.Sender{ID: c.ID, Name: r.resolveName(c, p.UserName), IsStaff: c.Identity.Staff},
		Body:   body,
	}
	r.persistAndBroadcast(ctx, msg, MessageRooms(roomID), kind)
}

func (r *Relay) handleTyping(ctx context.Context, c *Client, p types.TypingPayload) {
	if !c.Joined() {
		r.sendError(c, "join a room before typing")
		return
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" || !c.CanAddress(roomID) {
		r.sendError(c, "not a member of this room")
		return
	}

	frame, err := types.Encode(types.EventUserTyping, types.UserTypingPayload{
		UserName: r.resolveName(c, p.UserName),
		IsTyping: p.IsTyping,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode typing event")
		return
	}
	r.publish(ctx, pubsub.Delivery{Rooms: TypingRooms(roomID), Payload: frame, Except: c.ID})
}

func (r *Relay) handleFetchHistory(ctx context.Context, c *Client, p types.FetchHistoryPayload) {
	if !c.Joined() {
		r.sendError(c, "join a room before fetching history")
		return
	}
	roomID := strings.TrimSpace(p.RoomID)
	if c.Identity.Staff && (roomID == "" || IsReserved(roomID)) {
		r.sendHistoryAsync(ctx, c, "")
		return
	}
	if roomID == "" || !c.CanAddress(roomID) {
		r.sendError(c, "not a member of this room")
		return
	}
	r.sendHistoryAsync(ctx, c, roomID)
}

// persistAndBroadcast writes msg to the store, bounded by the store timeout,
// and then publishes it whatever the outcome. A failed write leaves ID zero.
func (r *Relay) persistAndBroadcast(ctx context.Context, msg *models.Message, rooms []string, kind string) {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	err := r.store.Append(storeCtx, msg)
	cancel()

	if err != nil {
		metrics.StoreFailures.WithLabelValues("append").Inc()
		r.logger.Error().
			Err(err).
			Str("room_id", msg.RoomID).
			Str("sender_id", msg.Sender.ID).
			Msg("failed to persist message, broadcasting anyway")
		msg.ID = 0
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
	}

	frame, err := types.Encode(types.EventMessage, msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode message")
		return
	}
	if r.publish(ctx, pubsub.Delivery{Rooms: rooms, Payload: frame}) {
		metrics.MessagesRelayed.WithLabelValues(kind).Inc()
	}
}

func (r *Relay) publish(ctx context.Context, d pubsub.Delivery) bool {
	if err := r.broker.Publish(ctx, d); err != nil {
		r.logger.Error().Err(err).Strs("rooms", d.Rooms).Msg("failed to publish delivery")
		return false
	}
	return true
}

// sendHistoryAsync fetches history off the dispatch path and sends it to c
// only. An empty roomID means every room.
func (r *Relay) sendHistoryAsync(ctx context.Context, c *Client, roomID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sendHistory(ctx, c, roomID)
	}()
}

// sendHistory loads the newest messages for roomID and sends them to c.
// Store failures send nothing.
func (r *Relay) sendHistory(ctx context.Context, c *Client, roomID string) {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var (
		history []*models.Message
		err     error
	)
	if roomID == "" {
		history, err = r.store.RecentAcrossRooms(storeCtx, r.cfg.HistoryLimit)
	} else {
		history, err = r.store.RecentHistory(storeCtx, roomID, r.cfg.HistoryLimit)
	}
	if err != nil {
		metrics.StoreFailures.WithLabelValues("history").Inc()
		r.logger.Error().Err(err).Str("conn_id", c.ID).Str("room_id", roomID).Msg("failed to load history")
		return
	}
	if history == nil {
		history = []*models.Message{}
	}

	frame, err := types.Encode(types.EventMessageHistory, history)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode history")
		return
	}
	r.hub.SendTo(c, frame)
}

func (r *Relay) sendError(c *Client, message string) {
	frame, err := types.Encode(types.EventError, types.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	r.hub.SendTo(c, frame)
}

// resolveName picks the display name for c. Staff use the name on their
// token; guests choose their own.
func (r *Relay) resolveName(c *Client, requested string) string {
	requested = strings.TrimSpace(requested)
	if c.Identity.Staff {
		switch {
		case c.Identity.DisplayName != "":
			return c.Identity.DisplayName
		case requested != "":
			return truncate(requested)
		default:
			return c.Identity.Username
		}
	}
	if requested != "" {
		return truncate(requested)
	}
	if name := c.Name(); name != "" {
		return name
	}
	return defaultGuestName
}

func truncate(name string) string {
	runes := []rune(name)
	if len(runes) > maxNameLength {
		return string(runes[:maxNameLength])
	}
	return name
}
