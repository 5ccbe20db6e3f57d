package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter(t *testing.T) {
	tests := []struct {
		name     string
		got      []string
		expected []string
	}{
		{"guest join", JoinRooms("guest-42", false), []string{"guest-42"}},
		{"staff join ignores room", JoinRooms("guest-42", true), []string{StaffRoom}},
		{"announce", AnnounceRooms("guest-42"), []string{"guest-42", StaffRoom}},
		{"guest room message mirrored", MessageRooms("guest-42"), []string{"guest-42", StaffRoom}},
		{"staff room message not duplicated", MessageRooms(StaffRoom), []string{StaffRoom}},
		{"typing not mirrored", TypingRooms("guest-42"), []string{"guest-42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("staff-room"))
	assert.False(t, IsReserved("guest-42"))
	assert.False(t, IsReserved(""))
}
