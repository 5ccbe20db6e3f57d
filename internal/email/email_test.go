package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hotel-relay/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		wantErr  bool
		wantType Sender
	}{
		{"log", ProviderLog, "", false, &LogSender{}},
		{"default is log", "", "", false, &LogSender{}},
		{"resend", ProviderResend, "re_123", false, &ResendSender{}},
		{"resend without key", ProviderResend, "", true, nil},
		{"unknown", "carrier-pigeon", "", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := New(tt.provider, tt.apiKey, "hotel@example.com", zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, sender)
		})
	}
}

func TestResendSender_Send(t *testing.T) {
	var got resendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewResendSender("re_123", "", zerolog.Nop())
	s.endpoint = srv.URL

	require.NoError(t, s.Send(context.Background(), "desk@hotel.example", "Hi", "<p>Hi</p>"))
	assert.Equal(t, defaultSender, got.From)
	assert.Equal(t, []string{"desk@hotel.example"}, got.To)
	assert.Equal(t, "<p>Hi</p>", got.HTML)
}

func TestResendSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := NewResendSender("re_123", "hotel@example.com", zerolog.Nop())
	s.endpoint = srv.URL

	err := s.Send(context.Background(), "desk@hotel.example", "Hi", "<p>Hi</p>")
	assert.EqualError(t, err, "resend returned status 422")
}

func TestRenderBooking_EscapesInput(t *testing.T) {
	subject, body, err := RenderBooking(types.BookingRequest{
		Name:     "Ana",
		Email:    "ana@example.com",
		CheckIn:  "2026-07-01",
		CheckOut: "2026-07-04",
		Guests:   2,
		Message:  "<script>alert(1)</script>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Booking request from Ana (2026-07-01 to 2026-07-04)", subject)
	assert.Contains(t, body, "not provided")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>")
}
