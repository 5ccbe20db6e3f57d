package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hotel-relay/internal/auth"
	"hotel-relay/internal/domain"
	"hotel-relay/internal/logging"
	"hotel-relay/internal/models"
	"hotel-relay/internal/pubsub"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "relay-test-key"

type memStore struct {
	mu          sync.Mutex
	rows        []*models.Message
	nextID      int64
	failAppend  bool
	failHistory bool
}

var _ repository.MessageRepo = (*memStore)(nil)

func (s *memStore) EnsureSchema(context.Context) error { return nil }
func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Stats() repository.PoolStats { return repository.PoolStats{} }
func (s *memStore) Close() {}

func (s *memStore) setFailAppend(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = v
}

func (s *memStore) Append(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return &domain.StorageError{Op: "append", Err: errors.New("connection refused")}
	}
	s.nextID++
	m.ID = s.nextID
	m.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.nextID) * time.Second)
	row := *m
	s.rows = append(s.rows, &row)
	return nil
}

func (s *memStore) RecentHistory(_ context.Context, roomID string, limit int) ([]*models.Message, error) {
	return s.recent(func(m *models.Message) bool { return m.RoomID == roomID }, limit)
}

func (s *memStore) RecentAcrossRooms(_ context.Context, limit int) ([]*models.Message, error) {
	return s.recent(func(*models.Message) bool { return true }, limit)
}

func (s *memStore) recent(match func(*models.Message) bool, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHistory {
		return nil, &domain.StorageError{Op: "history", Err: errors.New("connection refused")}
	}
	var out []*models.Message
	for _, m := range s.rows {
		if match(m) {
			row := *m
			out = append(out, &row)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func newTestRelay(t *testing.T, cfg Config) (*Relay, *memStore) {
	t.Helper()
	store := &memStore{}
	broker := pubsub.NewWatermillBroker(logging.NewWatermillAdapter(zerolog.Nop()), zerolog.Nop())
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = time.Second
	}

	relay := NewRelay(store, broker, auth.NewIssuer(testKey), cfg, nil, zerolog.Nop())
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(func() {
		relay.Stop()
		broker.Close()
	})
	return relay, store
}

func guest(r *Relay) *Client {
	return r.Connect(Identity{}, TransportWebSocket, nil)
}

func staff(r *Relay, name string) *Client {
	return r.Connect(Identity{Staff: true, Username: name, DisplayName: name}, TransportWebSocket, nil)
}

func emit(t *testing.T, r *Relay, c *Client, event types.EventType, payload any) {
	t.Helper()
	frame, err := types.Encode(event, payload)
	require.NoError(t, err)
	r.Dispatch(context.Background(), c, frame)
}

// frames reads everything delivered to c until it has been quiet for a while.
func frames(t *testing.T, c *Client) []types.Envelope {
	t.Helper()
	var out []types.Envelope
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var env types.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		case <-time.After(150 * time.Millisecond):
			return out
		}
	}
}

func only(envs []types.Envelope, event types.EventType) []types.Envelope {
	var out []types.Envelope
	for _, env := range envs {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func decodeMessage(t *testing.T, env types.Envelope) models.Message {
	t.Helper()
	var m models.Message
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func decodeHistory(t *testing.T, env types.Envelope) []models.Message {
	t.Helper()
	var history []models.Message
	require.NoError(t, json.Unmarshal(env.Data, &history))
	return history
}

func decodeError(t *testing.T, env types.Envelope) string {
	t.Helper()
	var p types.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p.Message
}

func TestRelay_GuestMessageReachesRoomAndEveryStaffOnce(t *testing.T) {
	r, store := newTestRelay(t, Config{})

	ana := guest(r)
	alice := staff(r, "Alice")
	bob := staff(r, "Bob")

	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{})
	emit(t, r, bob, types.EventJoinRoom, types.JoinRoomPayload{})
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	frames(t, ana)
	frames(t, alice)
	frames(t, bob)

	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", UserName: "Ana", Message: "Hello"})

	for name, c := range map[string]*Client{"guest": ana, "alice": alice, "bob": bob} {
		msgs := only(frames(t, c), types.EventMessage)
		require.Len(t, msgs, 1, name)
		m := decodeMessage(t, msgs[0])
		assert.Equal(t, "Hello", m.Body, name)
		assert.Equal(t, "guest-42", m.RoomID, name)
		assert.Equal(t, ana.ID, m.Sender.ID, name)
		assert.False(t, m.Sender.IsStaff, name)
		assert.NotZero(t, m.ID, name)
	}
	assert.Equal(t, 2, store.count())
}

func TestRelay_StaffReplyReachesGuestAndStaffOnce(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	ana := guest(r)
	alice := staff(r, "Alice")
	bob := staff(r, "Bob")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	emit(t, r, bob, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	frames(t, ana)
	frames(t, alice)
	frames(t, bob)

	emit(t, r, alice, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", UserName: "ignored", Message: "How can we help?"})

	for name, c := range map[string]*Client{"guest": ana, "alice": alice, "bob": bob} {
		msgs := only(frames(t, c), types.EventMessage)
		require.Len(t, msgs, 1, name)
		m := decodeMessage(t, msgs[0])
		assert.True(t, m.Sender.IsStaff, name)
		assert.Equal(t, "Alice", m.Sender.Name, name)
	}
}

func TestRelay_StaffRoomMessageNotDuplicated(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	alice := staff(r, "Alice")
	bob := staff(r, "Bob")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	emit(t, r, bob, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	frames(t, alice)
	frames(t, bob)

	emit(t, r, alice, types.EventSendMessage, types.SendMessagePayload{RoomID: StaffRoom, Message: "shift change at 6"})

	assert.Len(t, only(frames(t, alice), types.EventMessage), 1)
	assert.Len(t, only(frames(t, bob), types.EventMessage), 1)
}

func TestRelay_GuestJoinAnnouncedToRoomAndStaff(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	alice := staff(r, "Alice")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	frames(t, alice)

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})

	for name, c := range map[string]*Client{"guest": ana, "staff": alice} {
		msgs := only(frames(t, c), types.EventMessage)
		require.Len(t, msgs, 1, name)
		m := decodeMessage(t, msgs[0])
		assert.Equal(t, "system", m.Sender.ID, name)
		assert.Equal(t, "System", m.Sender.Name, name)
		assert.Equal(t, "Ana joined the chat", m.Body, name)
		assert.Equal(t, "guest-42", m.RoomID, name)
	}
}

func TestRelay_JoinerSeesOwnAnnouncementOnce(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	for i := 0; i < 20; i++ {
		ana := guest(r)
		roomID := fmt.Sprintf("guest-%d", i)
		emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: roomID, UserName: "Ana"})

		envs := frames(t, ana)
		announcements := 0
		for _, env := range only(envs, types.EventMessage) {
			if decodeMessage(t, env).Body == "Ana joined the chat" {
				announcements++
			}
		}
		histories := only(envs, types.EventMessageHistory)
		require.Len(t, histories, 1, roomID)
		for _, m := range decodeHistory(t, histories[0]) {
			if m.Body == "Ana joined the chat" {
				announcements++
			}
		}
		assert.Equal(t, 1, announcements, roomID)
		r.Disconnect(ana)
	}
}

func TestRelay_StoreFailureStillBroadcasts(t *testing.T) {
	r, store := newTestRelay(t, Config{})

	ana := guest(r)
	alice := staff(r, "Alice")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	frames(t, ana)
	frames(t, alice)

	store.setFailAppend(true)
	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", Message: "Is breakfast included?"})

	for name, c := range map[string]*Client{"guest": ana, "staff": alice} {
		msgs := only(frames(t, c), types.EventMessage)
		require.Len(t, msgs, 1, name)
		m := decodeMessage(t, msgs[0])
		assert.Zero(t, m.ID, name)
		assert.False(t, m.Timestamp.IsZero(), name)
		assert.Equal(t, "Is breakfast included?", m.Body, name)
	}
	assert.Equal(t, 1, store.count(), "only the join announcement was stored")
}

func TestRelay_StaffSeesGuestHistoryInOrder(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", Message: "Hello"})

	alice := staff(r, "Alice")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	joinHistory := only(frames(t, alice), types.EventMessageHistory)
	require.Len(t, joinHistory, 1)

	emit(t, r, alice, types.EventFetchHistory, types.FetchHistoryPayload{RoomID: "guest-42"})
	fetched := only(frames(t, alice), types.EventMessageHistory)
	require.Len(t, fetched, 1)

	for _, env := range []types.Envelope{joinHistory[0], fetched[0]} {
		history := decodeHistory(t, env)
		require.Len(t, history, 2)
		assert.Equal(t, "Ana joined the chat", history[0].Body)
		assert.Equal(t, "Hello", history[1].Body)
		for _, m := range history {
			assert.Equal(t, "guest-42", m.RoomID)
		}
		assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
	}
}

func TestRelay_HistoryIsBoundedToNewest(t *testing.T) {
	r, store := newTestRelay(t, Config{HistoryLimit: 5})

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(context.Background(), &models.Message{RoomID: "guest-7", Body: string(rune('a' + i))}))
	}

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-7", UserName: "Ana"})

	histories := only(frames(t, ana), types.EventMessageHistory)
	require.Len(t, histories, 1)
	history := decodeHistory(t, histories[0])
	require.Len(t, history, 5)
	assert.Equal(t, "d", history[0].Body)
	assert.Equal(t, "h", history[4].Body)
}

func TestRelay_HistoryFailureSendsNothing(t *testing.T) {
	r, store := newTestRelay(t, Config{})
	store.mu.Lock()
	store.failHistory = true
	store.mu.Unlock()

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})

	envs := frames(t, ana)
	assert.Empty(t, only(envs, types.EventMessageHistory))
	assert.Empty(t, only(envs, types.EventError))
	assert.Len(t, only(envs, types.EventMessage), 1)
}

func TestRelay_TypingStaysInRoom(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	ana := guest(r)
	ben := guest(r)
	alice := staff(r, "Alice")
	emit(t, r, alice, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom})
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	emit(t, r, ben, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ben"})
	frames(t, ana)
	frames(t, ben)
	frames(t, alice)

	emit(t, r, ana, types.EventTyping, types.TypingPayload{RoomID: "guest-42", UserName: "Ana", IsTyping: true})

	typing := only(frames(t, ben), types.EventUserTyping)
	require.Len(t, typing, 1)
	var p types.UserTypingPayload
	require.NoError(t, json.Unmarshal(typing[0].Data, &p))
	assert.Equal(t, types.UserTypingPayload{UserName: "Ana", IsTyping: true}, p)

	assert.Empty(t, only(frames(t, ana), types.EventUserTyping), "sender does not see its own typing")
	assert.Empty(t, only(frames(t, alice), types.EventUserTyping), "typing is not mirrored to staff")
}

func TestRelay_GuestCannotClaimStaff(t *testing.T) {
	r, _ := newTestRelay(t, Config{})

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: StaffRoom, UserName: "Ana", IsStaff: true})
	errs := only(frames(t, ana), types.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "room is reserved for staff", decodeError(t, errs[0]))

	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana", IsStaff: true})
	frames(t, ana)
	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", Message: "hi", IsStaff: true})

	msgs := only(frames(t, ana), types.EventMessage)
	require.Len(t, msgs, 1)
	assert.False(t, decodeMessage(t, msgs[0]).Sender.IsStaff)
}

func TestRelay_RejectsInvalidInput(t *testing.T) {
	r, store := newTestRelay(t, Config{})
	ana := guest(r)

	tests := []struct {
		name     string
		frame    func() []byte
		expected string
	}{
		{
			name:     "malformed json",
			frame:    func() []byte { return []byte("{not json") },
			expected: "malformed frame",
		},
		{
			name: "unknown event",
			frame: func() []byte {
				b, _ := types.Encode("leave-room", map[string]string{})
				return b
			},
			expected: `unknown event "leave-room"`,
		},
		{
			name: "send before join",
			frame: func() []byte {
				b, _ := types.Encode(types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", Message: "hi"})
				return b
			},
			expected: "join a room before sending messages",
		},
		{
			name: "typing before join",
			frame: func() []byte {
				b, _ := types.Encode(types.EventTyping, types.TypingPayload{RoomID: "guest-42"})
				return b
			},
			expected: "join a room before typing",
		},
		{
			name: "join without room",
			frame: func() []byte {
				b, _ := types.Encode(types.EventJoinRoom, types.JoinRoomPayload{UserName: "Ana"})
				return b
			},
			expected: "roomId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.Dispatch(context.Background(), ana, tt.frame())
			errs := only(frames(t, ana), types.EventError)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.expected, decodeError(t, errs[0]))
		})
	}
	assert.Zero(t, store.count())
}

func TestRelay_GuestConfinedToJoinedRoom(t *testing.T) {
	r, store := newTestRelay(t, Config{})

	ana := guest(r)
	emit(t, r, ana, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "guest-42", UserName: "Ana"})
	frames(t, ana)

	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-43", Message: "psst"})
	errs := only(frames(t, ana), types.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "not a member of this room", decodeError(t, errs[0]))

	emit(t, r, ana, types.EventSendMessage, types.SendMessagePayload{RoomID: "guest-42", Message: "   "})
	assert.Empty(t, frames(t, ana), "blank messages are dropped")
	assert.Equal(t, 1, store.count())
}

func TestRelay_Identify(t *testing.T) {
	r, _ := newTestRelay(t, Config{})
	issuer := auth.NewIssuer(testKey)

	staffToken, _, err := issuer.GenerateToken(models.StaffUser{Username: "alice", DisplayName: "Alice", Role: models.RoleStaff}, time.Minute)
	require.NoError(t, err)
	otherToken, _, err := issuer.GenerateToken(models.StaffUser{Username: "eve", Role: "viewer"}, time.Minute)
	require.NoError(t, err)
	forged, _, err := auth.NewIssuer("other-key").GenerateToken(models.StaffUser{Username: "mallory", Role: models.RoleStaff}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    string
		expected Identity
	}{
		{"no token", "", Identity{}},
		{"staff token", "?token=" + staffToken, Identity{Staff: true, Username: "alice", DisplayName: "Alice"}},
		{"non staff role", "?token=" + otherToken, Identity{}},
		{"forged token", "?token=" + forged, Identity{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/relay/ws"+tt.query, nil)
			assert.Equal(t, tt.expected, r.Identify(req))
		})
	}
}
