package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
)

// slidingWindowFraction is the trailing fraction of absolute expiry within which a
// valid session is reissued with a fresh cookie on every successful use.
const slidingWindowFraction = 0.5

const sessionCacheTTL = 10 * time.Minute

// Queries is the subset of db.Queries the manager needs.
type Queries interface {
	CreateSession(ctx context.Context, id string, principalID uuid.UUID, expiresAt time.Time) (db.Session, error)
	GetSession(ctx context.Context, id string) (db.Session, error)
	RenewSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
}

// Manager implements C8: issuance, cache-then-source-of-truth validation,
// sliding renewal, and logout.
type Manager struct {
	signer  *TokenSigner
	queries Queries
	cache   *cache.Client[db.Session]
	absolute time.Duration
	logger  *slog.Logger
}

// NewManager builds a Manager. absoluteExpiry is the configurable
// absolute session lifetime (default 30 days, §4.8).
func NewManager(secret string, absoluteExpiry time.Duration, queries Queries, store *cache.Store, logger *slog.Logger) (*Manager, error) {
	signer, err := NewTokenSigner(secret, absoluteExpiry)
	if err != nil {
		return nil, err
	}
	return &Manager{
		signer:   signer,
		queries:  queries,
		cache:    cache.NewClient[db.Session](store, "session", sessionCacheTTL),
		absolute: absoluteExpiry,
		logger:   logger,
	}, nil
}

// Result is the outcome of a successful Validate.
type Result struct {
	Session db.Session
	// Fresh is true when the session was within the sliding-renewal
	// window and has been reissued; Token carries the new cookie value.
	Fresh bool
	Token string
}

// Issue creates a new session for principalID and returns the signed
// cookie token.
func (m *Manager) Issue(ctx context.Context, principalID uuid.UUID) (string, db.Session, error) {
	id := NewSessionID()
	expiresAt := time.Now().Add(m.absolute)

	s, err := m.queries.CreateSession(ctx, id, principalID, expiresAt)
	if err != nil {
		return "", db.Session{}, err
	}
	if err := m.cache.Set(ctx, id, s); err != nil {
		m.logger.Warn("session cache write failed", "error", err)
	}

	token, err := m.signer.Issue(id)
	if err != nil {
		return "", db.Session{}, err
	}
	return token, s, nil
}

// Validate parses and verifies raw, then resolves the session via cache,
// falling back to the source of truth on miss, consistent with every other
// cache-fronted lookup in this codebase. An expired session is invalid
// even if the signed envelope itself has not expired.
func (m *Manager) Validate(ctx context.Context, raw string) (Result, bool) {
	sessionID, err := m.signer.Verify(raw)
	if err != nil {
		return Result{}, false
	}

	s, ok := m.lookup(ctx, sessionID)
	if !ok {
		return Result{}, false
	}
	if !time.Now().Before(s.ExpiresAt) {
		m.cache.Delete(ctx, sessionID)
		return Result{}, false
	}

	res := Result{Session: s}
	remaining := time.Until(s.ExpiresAt)
	if remaining < time.Duration(float64(m.absolute)*slidingWindowFraction) {
		newExpiry := time.Now().Add(m.absolute)
		if err := m.queries.RenewSession(ctx, sessionID, newExpiry); err != nil {
			m.logger.Warn("session renewal failed", "error", err)
			return res, true
		}
		s.ExpiresAt = newExpiry
		if err := m.cache.Set(ctx, sessionID, s); err != nil {
			m.logger.Warn("session cache renewal write failed", "error", err)
		}
		token, err := m.signer.Issue(sessionID)
		if err != nil {
			m.logger.Warn("session reissue failed", "error", err)
			return res, true
		}
		res.Fresh = true
		res.Token = token
		res.Session = s
	}
	return res, true
}

func (m *Manager) lookup(ctx context.Context, sessionID string) (db.Session, bool) {
	if e, ok := m.cache.Get(ctx, sessionID); ok {
		return e.Value, e.Present
	}
	s, err := m.queries.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			m.logger.Error("session lookup failed", "error", err)
		}
		if err := m.cache.SetAbsent(ctx, sessionID, sessionCacheTTL); err != nil {
			m.logger.Warn("session negative-cache write failed", "error", err)
		}
		return db.Session{}, false
	}
	if err := m.cache.Set(ctx, sessionID, s); err != nil {
		m.logger.Warn("session cache write failed", "error", err)
	}
	return s, true
}

// Logout deletes the session record and its cache entry. The caller issues
// a blank cookie.
func (m *Manager) Logout(ctx context.Context, raw string) {
	sessionID, err := m.signer.Verify(raw)
	if err != nil {
		return
	}
	if err := m.queries.DeleteSession(ctx, sessionID); err != nil {
		m.logger.Warn("session delete failed", "error", err)
	}
	m.cache.Delete(ctx, sessionID)
}
