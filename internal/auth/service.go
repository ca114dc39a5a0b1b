// Package auth provides participant identity for the gateway: ephemeral
// guest identities for drop-in play and password accounts for returning
// users. Sessions are bearer tokens held in memory with a sliding TTL;
// accounts live in a pluggable store (memory, SQLite or Postgres).
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32

	// Guest IDs are allocated above this line so they never collide with
	// store-assigned account IDs.
	guestIDBase = 1 << 62
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownAccount     = errors.New("unknown account")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Identity is what a resolved session grants.
type Identity struct {
	UserID   uint64
	Username string
	Guest    bool
}

// Service is the identity contract consumed by the gateway and HTTP handlers.
type Service interface {
	CreateGuest(displayName string) (Identity, string, error)
	Register(username, password string) (Identity, string, error)
	Login(username, password string) (Identity, string, error)
	ResolveSession(token string) (Identity, bool)
	Logout(token string)
	Close() error
}

// accountStore persists password accounts. Sessions never touch the store.
type accountStore interface {
	CreateAccount(ctx context.Context, username string, passwordHash []byte) (uint64, error)
	LookupAccount(ctx context.Context, username string) (uint64, []byte, error)
	TouchLogin(ctx context.Context, userID uint64, at time.Time) error
	Close() error
}

type sessionRecord struct {
	identity  Identity
	expiresAt time.Time
}

// Manager implements Service over an accountStore.
type Manager struct {
	store      accountStore
	sessionTTL time.Duration

	mu          sync.Mutex
	sessions    map[string]sessionRecord
	nextGuestID uint64
}

func NewManager(store accountStore) *Manager {
	return &Manager{
		store:       store,
		sessionTTL:  defaultSessionTTL,
		sessions:    make(map[string]sessionRecord),
		nextGuestID: guestIDBase,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func (m *Manager) issueSessionLocked(id Identity, now time.Time) string {
	token := mustToken()
	m.sessions[token] = sessionRecord{
		identity:  id,
		expiresAt: now.Add(m.sessionTTL),
	}
	return token
}

// CreateGuest mints a throwaway identity. Guests exist only as long as
// their session does.
func (m *Manager) CreateGuest(displayName string) (Identity, string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "guest"
	}
	if len(name) > 32 {
		name = name[:32]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextGuestID++
	id := Identity{
		UserID:   m.nextGuestID,
		Username: name,
		Guest:    true,
	}
	token := m.issueSessionLocked(id, time.Now())
	return id, token, nil
}

// Register creates a password account and returns an authenticated session.
func (m *Manager) Register(username, password string) (Identity, string, error) {
	if err := validateUsername(username); err != nil {
		return Identity{}, "", err
	}
	if err := validatePassword(password); err != nil {
		return Identity{}, "", err
	}

	normalized := normalizeUsername(username)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, "", err
	}

	ctx, cancel := storeContext()
	defer cancel()
	userID, err := m.store.CreateAccount(ctx, normalized, passwordHash)
	if err != nil {
		return Identity{}, "", err
	}

	id := Identity{UserID: userID, Username: normalized}
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.issueSessionLocked(id, time.Now())
	return id, token, nil
}

// Login validates credentials and returns a fresh session.
func (m *Manager) Login(username, password string) (Identity, string, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return Identity{}, "", ErrInvalidCredentials
	}

	ctx, cancel := storeContext()
	defer cancel()
	userID, passwordHash, err := m.store.LookupAccount(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return Identity{}, "", ErrInvalidCredentials
		}
		return Identity{}, "", err
	}
	if bcrypt.CompareHashAndPassword(passwordHash, []byte(password)) != nil {
		return Identity{}, "", ErrInvalidCredentials
	}

	now := time.Now()
	_ = m.store.TouchLogin(ctx, userID, now)

	id := Identity{UserID: userID, Username: normalized}
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.issueSessionLocked(id, now)
	return id, token, nil
}

// ResolveSession validates a token and slides its expiry.
func (m *Manager) ResolveSession(token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[token]
	if !exists {
		return Identity{}, false
	}
	now := time.Now()
	if !now.Before(rec.expiresAt) {
		delete(m.sessions, token)
		return Identity{}, false
	}
	rec.expiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec
	return rec.identity, true
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) Close() error {
	return m.store.Close()
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
