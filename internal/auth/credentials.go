package auth

import (
	"fmt"
	"strings"

	"hotel-relay/internal/domain"
	"hotel-relay/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps unknown-user logins as slow as wrong-password logins.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// Directory is the fixed in-memory list of admin accounts.
type Directory struct {
	users map[string]models.StaffUser
}

// ParseDirectory reads "username:bcrypt-hash[:Display Name]" entries
// separated by commas.
func ParseDirectory(raw string) (*Directory, error) {
	d := &Directory{users: make(map[string]models.StaffUser)}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed admin entry %q", entry)
		}
		if _, err := bcrypt.Cost([]byte(parts[1])); err != nil {
			return nil, fmt.Errorf("admin %q: password must be a bcrypt hash: %w", parts[0], err)
		}

		user := models.StaffUser{
			Username:     parts[0],
			DisplayName:  parts[0],
			Role:         models.RoleStaff,
			PasswordHash: parts[1],
		}
		if len(parts) == 3 && parts[2] != "" {
			user.DisplayName = parts[2]
		}
		d.users[user.Username] = user
	}

	return d, nil
}

func NewDirectory(users ...models.StaffUser) *Directory {
	d := &Directory{users: make(map[string]models.StaffUser, len(users))}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

func (d *Directory) Len() int {
	return len(d.users)
}

// Authenticate returns domain.ErrInvalidCredentials for both unknown users
// and wrong passwords.
func (d *Directory) Authenticate(username, password string) (models.StaffUser, error) {
	user, ok := d.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.StaffUser{}, domain.ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return models.StaffUser{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (d *Directory) Lookup(username string) (models.StaffUser, bool) {
	u, ok := d.users[username]
	return u, ok
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
