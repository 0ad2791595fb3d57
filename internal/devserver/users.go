package devserver

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// User is a dev backend account.
type User struct {
	ID                string `yaml:"id"`
	Email             string `yaml:"email"`
	DisplayName       string `yaml:"display_name"`
	ProfilePictureURL string `yaml:"profile_picture_url,omitempty"`
	Username          string `yaml:"username,omitempty"`
	UsernameSetAt     string `yaml:"username_set_at,omitempty"`
}

type userFile struct {
	Users []User `yaml:"users"`
}

// DefaultUsers seeds the directory when no fixture file is given.
const DefaultUsers = `
users:
  - email: ada@example.com
    display_name: Ada Lovelace
    username: ada
    username_set_at: "2024-05-01T10:00:00Z"
  - email: grace@example.com
    display_name: Grace Hopper
`

// Directory holds the dev accounts, keyed by id and email.
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]*User
}

// ParseUsers builds a Directory from a YAML fixture. Users without an id
// get a random one.
func ParseUsers(data []byte) (*Directory, error) {
	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users: %w", err)
	}

	d := &Directory{byID: make(map[string]*User), byEmail: make(map[string]*User)}
	for _, u := range f.Users {
		if u.Email == "" {
			return nil, fmt.Errorf("user %q has no email", u.ID)
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		u := u
		d.byID[u.ID] = &u
		d.byEmail[strings.ToLower(u.Email)] = &u
	}
	return d, nil
}

// LoadUsers reads a YAML fixture from path.
func LoadUsers(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return ParseUsers(data)
}

// ByID returns a copy of the user with id.
func (d *Directory) ByID(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// ByEmail returns a copy of the user with email.
func (d *Directory) ByEmail(email string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// ErrUsernameTaken is returned by SetUsername when another user holds the name.
var ErrUsernameTaken = errors.New("username already taken")

// ErrUnknownUser is returned by SetUsername for an id not in the directory.
var ErrUnknownUser = errors.New("unknown user")

// SetUsername records a username for id. Names are unique ignoring case.
func (d *Directory) SetUsername(id, username, at string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	for otherID, other := range d.byID {
		if otherID != id && strings.EqualFold(other.Username, username) {
			return User{}, ErrUsernameTaken
		}
	}
	u.Username = username
	u.UsernameSetAt = at
	return *u, nil
}
