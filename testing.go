package fireauth

import (
	"sync"
	"testing"
)

// TestStorage is an in-memory Storage for tests; it stands in for the
// cookie/local-storage backend the expiry instant is persisted in.
type TestStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewTestStorage creates an empty TestStorage.
func NewTestStorage(t *testing.T) *TestStorage {
	t.Helper()
	return &TestStorage{
		values: map[string]string{},
	}
}

// Get implements Storage.Get
func (s *TestStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements Storage.Set
func (s *TestStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete implements Storage.Delete
func (s *TestStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// TestSessionStore is an in-memory SessionStore for tests; it stands in for
// the auth orchestrator's cross-strategy session state. LoggedIn reports
// whether any provider slot holds an id token.
type TestSessionStore struct {
	mu            sync.Mutex
	tokens        map[string]string
	refreshTokens map[string]string
	user          *User
	resetCount    int
}

// NewTestSessionStore creates an empty TestSessionStore.
func NewTestSessionStore(t *testing.T) *TestSessionStore {
	t.Helper()
	return &TestSessionStore{
		tokens:        map[string]string{},
		refreshTokens: map[string]string{},
	}
}

// Token implements SessionStore.Token
func (s *TestSessionStore) Token(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[name]
}

// SetToken implements SessionStore.SetToken
func (s *TestSessionStore) SetToken(name, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		delete(s.tokens, name)
		return
	}
	s.tokens[name] = token
}

// RefreshToken implements SessionStore.RefreshToken
func (s *TestSessionStore) RefreshToken(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshTokens[name]
}

// SetRefreshToken implements SessionStore.SetRefreshToken
func (s *TestSessionStore) SetRefreshToken(name, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		delete(s.refreshTokens, name)
		return
	}
	s.refreshTokens[name] = token
}

// User implements SessionStore.User
func (s *TestSessionStore) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetUser implements SessionStore.SetUser
func (s *TestSessionStore) SetUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// LoggedIn implements SessionStore.LoggedIn
func (s *TestSessionStore) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens) > 0
}

// Reset implements SessionStore.Reset
func (s *TestSessionStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
	s.refreshTokens = map[string]string{}
	s.user = nil
	s.resetCount++
	return nil
}

// ResetCount returns how many times Reset has been called.
func (s *TestSessionStore) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetCount
}
