package auth

import (
	"context"
	"sync"
	"time"
)

// memoryStore backs memory mode and tests. Accounts vanish on restart;
// that is acceptable because memory mode is for single-shot local runs.
type memoryStore struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string]memoryAccount
}

type memoryAccount struct {
	userID       uint64
	passwordHash []byte
	lastLogin    time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		nextID: 100000, // start from a readable non-trivial range
		byName: make(map[string]memoryAccount),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, username string, passwordHash []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return 0, ErrUsernameTaken
	}
	s.nextID++
	s.byName[username] = memoryAccount{
		userID:       s.nextID,
		passwordHash: passwordHash,
	}
	return s.nextID, nil
}

func (s *memoryStore) LookupAccount(_ context.Context, username string) (uint64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, exists := s.byName[username]
	if !exists {
		return 0, nil, ErrUnknownAccount
	}
	return acct.userID, acct.passwordHash, nil
}

func (s *memoryStore) TouchLogin(_ context.Context, userID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, acct := range s.byName {
		if acct.userID == userID {
			acct.lastLogin = at
			s.byName[name] = acct
			return nil
		}
	}
	return ErrUnknownAccount
}

func (s *memoryStore) Close() error { return nil }
