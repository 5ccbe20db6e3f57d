package types

import "time"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type StaffDTO struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type AuthResponse struct {
	Authenticated bool      `json:"authenticated"`
	User          *StaffDTO `json:"user,omitempty"`
}

type RelayTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BookingRequest is the guest booking form. Dates are YYYY-MM-DD.
type BookingRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=40"`
	CheckIn  string `json:"checkIn" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"checkOut" validate:"required,datetime=2006-01-02"`
	Guests   int    `json:"guests" validate:"required,min=1,max=20"`
	RoomType string `json:"roomType" validate:"omitempty,max=60"`
	Message  string `json:"message" validate:"omitempty,max=4000"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
