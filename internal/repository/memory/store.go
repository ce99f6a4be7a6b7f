// Package memory provides an in-memory repository.Store. Transactions are
// serialized and rolled back by restoring a snapshot, which gives the same
// all-or-nothing behaviour as the PostgreSQL store for service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

type state struct {
	vehicles   map[int64]models.Vehicle
	types      map[int64]models.ViolationType
	violations map[int64]models.Violation
	payments   map[int64]models.Payment
	nextID     int64
}

func newState() *state {
	return &state{
		vehicles:   make(map[int64]models.Vehicle),
		types:      make(map[int64]models.ViolationType),
		violations: make(map[int64]models.Violation),
		payments:   make(map[int64]models.Payment),
	}
}

func (s *state) clone() *state {
	c := &state{
		vehicles:   make(map[int64]models.Vehicle, len(s.vehicles)),
		types:      make(map[int64]models.ViolationType, len(s.types)),
		violations: make(map[int64]models.Violation, len(s.violations)),
		payments:   make(map[int64]models.Payment, len(s.payments)),
		nextID:     s.nextID,
	}
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range s.types {
		c.types[k] = v
	}
	for k, v := range s.violations {
		c.violations[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type shared struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state
	now  func() time.Time
}

// Store is an in-memory repository.Store.
type Store struct {
	sh   *shared
	inTx bool
}

// New creates an empty Store using the wall clock for timestamps.
func New() *Store {
	return NewWithClock(func() time.Time { return time.Now().UTC() })
}

// NewWithClock creates an empty Store that stamps rows using now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{sh: &shared{st: newState(), now: now}}
}

func (s *Store) Vehicles() repository.VehicleRepository {
	return vehicleRepo{s}
}

func (s *Store) ViolationTypes() repository.ViolationTypeRepository {
	return violationTypeRepo{s}
}

func (s *Store) Violations() repository.ViolationRepository {
	return violationRepo{s}
}

func (s *Store) Payments() repository.PaymentRepository {
	return paymentRepo{s}
}

// WithTx runs fn with exclusive access to the store and restores the
// pre-transaction state if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.Lock()
	snapshot := s.sh.st.clone()
	s.sh.mu.Unlock()

	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		s.sh.mu.Lock()
		s.sh.st = snapshot
		s.sh.mu.Unlock()
		return err
	}
	return nil
}

// do runs fn against the current state. Outside a transaction it waits
// for any running transaction to finish first.
func (s *Store) do(fn func(st *state, now time.Time) error) error {
	if !s.inTx {
		s.sh.txMu.Lock()
		defer s.sh.txMu.Unlock()
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return fn(s.sh.st, s.sh.now())
}

var _ repository.Store = (*Store)(nil)
