package chat

// StaffRoom is the reserved channel through which staff see every room.
const StaffRoom = "staff-room"

// The router is pure policy: it maps an event to the rooms that must receive
// it and keeps no state of its own. Membership lives in the Hub.

// JoinRooms lists the groups a joining connection is added to. Staff are
// only ever members of the staff channel.
func JoinRooms(roomID string, isStaff bool) []string {
	if isStaff {
		return []string{StaffRoom}
	}
	return []string{roomID}
}

// AnnounceRooms addresses the system message sent when a guest joins.
func AnnounceRooms(roomID string) []string {
	return []string{roomID, StaffRoom}
}

// MessageRooms addresses a chat message: its own room, mirrored to staff
// unless it already is the staff channel.
func MessageRooms(roomID string) []string {
	if roomID == StaffRoom {
		return []string{StaffRoom}
	}
	return []string{roomID, StaffRoom}
}

// TypingRooms addresses a typing indicator. It is not mirrored to staff.
func TypingRooms(roomID string) []string {
	return []string{roomID}
}

func IsReserved(roomID string) bool {
	return roomID == StaffRoom
}
