// Package token issues and redeems short-lived success tokens. A token proves
// that a payment verification committed moments ago; it is opaque, single-use,
// and expires after a configurable TTL.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a token is unknown, already redeemed, or expired.
// Callers cannot distinguish the three cases; an attacker probing tokens learns
// nothing from the error.
var ErrNotFound = errors.New("token: not found")

// Grant is the payload bound to a minted token.
type Grant struct {
	OrderID       string
	PaymentID     string
	TransactionID string
	Amount        int64
	Currency      string
	MintedAt      time.Time
}

// Store holds minted tokens until redemption or expiry.
type Store struct {
	mu          sync.Mutex
	grants      map[string]grantEntry
	ttl         time.Duration
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type grantEntry struct {
	grant   Grant
	expires time.Time
}

// NewStore creates a token store with the given TTL and starts the background
// sweeper for expired entries.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &Store{
		grants:      make(map[string]grantEntry),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go s.cleanup()

	return s
}

// Mint generates a cryptographically random token bound to the grant.
func (s *Store) Mint(grant Grant) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	now := time.Now()
	grant.MintedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[tok] = grantEntry{grant: grant, expires: now.Add(s.ttl)}
	return tok, nil
}

// Redeem consumes the token, returning its grant. Each token redeems at most
// once; a second redemption and an expired token both return ErrNotFound.
func (s *Store) Redeem(tok string) (Grant, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.grants[tok]
	if !ok {
		return Grant{}, ErrNotFound
	}
	// Delete-on-read makes the token single-use even when expired
	delete(s.grants, tok)

	if now.After(entry.expires) {
		return Grant{}, ErrNotFound
	}
	return entry.grant, nil
}

// Outstanding returns the number of unredeemed tokens (expired ones included
// until the sweeper runs).
func (s *Store) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}

// cleanup periodically removes expired entries.
func (s *Store) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for tok, entry := range s.grants {
				if now.After(entry.expires) {
					delete(s.grants, tok)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Stop gracefully shuts down the cleanup goroutine.
func (s *Store) Stop() {
	close(s.stopCleanup)
	<-s.cleanupDone
}
