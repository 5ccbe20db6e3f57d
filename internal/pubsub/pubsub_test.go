package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"hotel-relay/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, b Broker) <-chan Delivery {
	t.Helper()
	out := make(chan Delivery, 16)
	err := b.Subscribe(context.Background(), func(_ context.Context, d Delivery) error {
		out <- d
		return nil
	})
	require.NoError(t, err)
	return out
}

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestBrokers_RoundTrip(t *testing.T) {
	brokers := map[string]func(t *testing.T) Broker{
		"watermill": func(t *testing.T) Broker {
			return NewWatermillBroker(logging.NewWatermillAdapter(zerolog.Nop()), zerolog.Nop())
		},
		"redis": func(t *testing.T) Broker {
			srv := miniredis.RunT(t)
			b, err := NewRedisBroker(context.Background(), "redis://"+srv.Addr(), zerolog.Nop())
			require.NoError(t, err)
			return b
		},
	}

	for name, build := range brokers {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			defer b.Close()

			first := collect(t, b)
			second := collect(t, b)

			sent := Delivery{
				Rooms:   []string{"guest-42", "staff-room"},
				Payload: json.RawMessage(`{"event":"message","data":{"message":"Hello"}}`),
			}
			require.NoError(t, b.Publish(context.Background(), sent))

			for _, ch := range []<-chan Delivery{first, second} {
				got := receive(t, ch)
				assert.Equal(t, sent.Rooms, got.Rooms)
				assert.JSONEq(t, string(sent.Payload), string(got.Payload))
			}
		})
	}
}

func TestWatermillBroker_PreservesOrder(t *testing.T) {
	b := NewWatermillBroker(logging.NewWatermillAdapter(zerolog.Nop()), zerolog.Nop())
	defer b.Close()

	ch := collect(t, b)
	for _, room := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(context.Background(), Delivery{Rooms: []string{room}, Payload: json.RawMessage(`{}`)}))
	}

	for _, room := range []string{"a", "b", "c"} {
		assert.Equal(t, []string{room}, receive(t, ch).Rooms)
	}
}

func TestNewRedisBroker_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisBroker(ctx, "redis://127.0.0.1:1", zerolog.Nop())
	assert.Error(t, err)
}
