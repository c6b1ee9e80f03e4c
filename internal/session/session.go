// Package session tracks per-user encoder preferences for the lifetime
// of the daemon process. Settings are held in memory only; a restart
// returns every user to the configured defaults.
package session

import (
	"sync"

	"opuspress/internal/opus"
)

// Settings is a user's current encoder preference pair.
type Settings struct {
	Tier            opus.Tier
	SpeechOptimized bool
}

// Store holds per-user settings behind a single mutex. Reads and
// writes are cheap; contention is bounded by the handful of API calls
// a user makes around each encode.
type Store struct {
	mu       sync.Mutex
	defaults Settings
	users    map[string]Settings
}

// NewStore creates a store whose unknown users resolve to defaults.
func NewStore(defaults Settings) *Store {
	return &Store{
		defaults: defaults,
		users:    make(map[string]Settings),
	}
}

// GetOrDefault returns the settings for userID, materializing the
// defaults on first access so later toggles mutate a stable entry.
func (s *Store) GetOrDefault(userID string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(userID)
}

// SetTier records a quality tier choice for userID and returns the
// resulting settings.
func (s *Store) SetTier(userID string, tier opus.Tier) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.lookupLocked(userID)
	current.Tier = tier
	s.users[userID] = current
	return current
}

// SetSpeechOptimized records the speech-optimization preference for
// userID and returns the resulting settings.
func (s *Store) SetSpeechOptimized(userID string, enabled bool) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.lookupLocked(userID)
	current.SpeechOptimized = enabled
	s.users[userID] = current
	return current
}

// ToggleSpeechOptimized flips the speech-optimization preference for
// userID and returns the resulting settings.
func (s *Store) ToggleSpeechOptimized(userID string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.lookupLocked(userID)
	current.SpeechOptimized = !current.SpeechOptimized
	s.users[userID] = current
	return current
}

// Reset drops any stored settings for userID, returning the user to
// the configured defaults.
func (s *Store) Reset(userID string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return s.defaults
}

// Len reports how many users currently hold non-default entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) lookupLocked(userID string) Settings {
	if current, ok := s.users[userID]; ok {
		return current
	}
	s.users[userID] = s.defaults
	return s.defaults
}
