// Package session loads the persisted sign-in context the client runs under.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrAbsent means no usable session exists; callers fail fast instead of
// degrading into an anonymous mode.
var ErrAbsent = errors.New("no session present")

type Session struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Available bool   `json:"available"`
	FirstName string `json:"firstName"`
}

// Load reads a session file. A missing file, unreadable JSON, or a record
// without token and user id all count as absent.
func Load(path string) (Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrAbsent
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, ErrAbsent
	}
	if s.Token == "" || s.UserID == "" {
		return Session{}, ErrAbsent
	}
	return s, nil
}

// Save writes the session back, for login flows that persist tokens.
func Save(path string, s Session) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func (s Session) IsVolunteer() bool {
	return s.Role == "volunteer"
}
