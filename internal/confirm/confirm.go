// Package confirm implements the action confirmation gateway: every
// destructive operation proposed by the command interpreter is held in a
// volatile pending-action store until the operator explicitly confirms or
// cancels it through the chat transport.
//
// The store is intentionally in-memory. A pending action that does not
// survive a process restart is simply never executed, which is the safe
// failure mode for unconfirmed intent.
package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotFound covers unknown, already-consumed, and expired pending
	// actions. The three cases are deliberately indistinguishable so a
	// caller cannot probe when an ID was consumed.
	ErrNotFound = errors.New("pending action not found")

	// ErrContextMismatch means the ID exists but was resolved from a
	// different chat than the one it was created in.
	ErrContextMismatch = errors.New("pending action belongs to a different chat")

	// ErrCapacity is returned by Create when the store holds the maximum
	// number of outstanding pending actions.
	ErrCapacity = errors.New("pending action store is full")
)

// DefaultTTL is how long an unconfirmed pending action stays resolvable.
const DefaultTTL = 10 * time.Minute

// DefaultMaxPending bounds the number of outstanding pending actions.
// The store is adversarially triggerable through chat, so it must not
// grow without limit.
const DefaultMaxPending = 512

// ProposedOperation is a single operation proposed by the interpreter:
// a name from the operation registry plus its structured arguments.
// Immutable once handed to the store.
type ProposedOperation struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// PendingAction is an un-executed batch of operations awaiting an
// operator decision. Description and Operations are frozen at creation;
// the operator always confirms exactly the text that was shown.
type PendingAction struct {
	ID          string
	ChatContext string // Chat the confirmation must come back on.
	Description string
	Operations  []ProposedOperation
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store holds pending actions keyed by an unguessable ID.
// Thread-safe. Expiry is checked lazily on every access; the background
// sweep only bounds memory and is never the source of truth.
type Store struct {
	mu         sync.Mutex
	pending    map[string]*PendingAction
	ttl        time.Duration
	maxPending int
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithMaxPending overrides the outstanding-entry bound.
func WithMaxPending(n int) StoreOption {
	return func(s *Store) { s.maxPending = n }
}

// WithMetrics attaches Prometheus metrics to the store.
func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a pending-action store with the given TTL.
// A TTL of zero falls back to DefaultTTL.
func NewStore(ttl time.Duration, logger *slog.Logger, opts ...StoreOption) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		pending:    make(map[string]*PendingAction),
		ttl:        ttl,
		maxPending: DefaultMaxPending,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create freezes the given operations and description under a fresh
// unguessable ID and returns the ID. Never blocks. Fails only when the
// random source fails (creation must abort rather than risk a reused ID)
// or when the store is at capacity.
func (s *Store) Create(chatContext, description string, operations []ProposedOperation) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("generating pending action ID: %w", err)
	}

	now := s.now()
	pa := &PendingAction{
		ID:          id,
		ChatContext: chatContext,
		Description: description,
		Operations:  freezeOperations(operations),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	s.mu.Lock()
	if s.maxPending > 0 && len(s.pending) >= s.maxPending {
		// Drop already-expired entries before rejecting.
		s.purgeLocked(now)
	}
	if s.maxPending > 0 && len(s.pending) >= s.maxPending {
		s.mu.Unlock()
		s.metrics.incRejected("capacity")
		return "", ErrCapacity
	}
	s.pending[id] = pa
	s.mu.Unlock()

	s.metrics.incCreated()
	s.logger.Info("pending action created",
		slog.String("pending_id", id),
		slog.String("chat", chatContext),
		slog.Int("operations", len(operations)),
	)
	return id, nil
}

// Get returns a copy of the pending action if it exists and has not
// expired. Expiry is defined by time, not by whether the sweep has run.
// The copy keeps the stored entry frozen even if the caller mutates the
// returned operations.
func (s *Store) Get(id string) (*PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.pending[id]
	if !ok || s.now().After(pa.ExpiresAt) {
		return nil, ErrNotFound
	}
	cp := *pa
	cp.Operations = freezeOperations(pa.Operations)
	return &cp, nil
}

// Consume atomically retrieves and removes the pending action. Of two
// concurrent Consume calls for the same ID exactly one succeeds; the
// other observes ErrNotFound. This is the property that makes the whole
// gateway at-most-once.
func (s *Store) Consume(id string) (*PendingAction, error) {
	s.mu.Lock()
	pa, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(pa.ExpiresAt) {
		// Entry outlived its TTL but the sweep had not removed it yet.
		s.metrics.incExpired()
		return nil, ErrNotFound
	}
	return pa, nil
}

// Len reports the number of entries currently held, including entries
// past their TTL that the sweep has not removed yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep removes entries past their TTL. Advisory cleanup only: Get and
// Consume honor expiry regardless of whether Sweep ever ran.
func (s *Store) Sweep() {
	s.mu.Lock()
	removed := s.purgeLocked(s.now())
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("pending action sweep", slog.Int("removed", removed))
	}
}

func (s *Store) purgeLocked(now time.Time) int {
	removed := 0
	for id, pa := range s.pending {
		if now.After(pa.ExpiresAt) {
			delete(s.pending, id)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.addExpired(removed)
	}
	return removed
}

// StartSweep runs Sweep on the given interval until the returned cancel
// function is called or the interval elapses after cancellation.
func (s *Store) StartSweep(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// freezeOperations deep-copies the proposal so later mutation by the
// caller cannot change what the operator confirmed.
func freezeOperations(ops []ProposedOperation) []ProposedOperation {
	frozen := make([]ProposedOperation, len(ops))
	for i, op := range ops {
		frozen[i] = ProposedOperation{Name: op.Name}
		if op.Args != nil {
			args := make(map[string]any, len(op.Args))
			for k, v := range op.Args {
				args[k] = v
			}
			frozen[i].Args = args
		}
	}
	return frozen
}

func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
