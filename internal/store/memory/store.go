// Package memory is an in-process Store. Write transactions are serialized by one
// mutex and run against a private copy of the state that replaces the live state
// only when the transaction function succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

type state struct {
	agents       map[uuid.UUID]models.Agent
	agentOrder   []uuid.UUID
	externalIDs  map[string]uuid.UUID
	jobs         map[uuid.UUID]models.Job
	jobOrder     []uuid.UUID
	services     map[uuid.UUID]models.Service
	serviceOrder []uuid.UUID
	reviews      map[uuid.UUID]models.Review
	reviewOrder  []uuid.UUID
	reviewKeys   map[[2]uuid.UUID]struct{}
	txs          []models.Transaction
	platform     models.PlatformStats
}

func newState() *state {
	return &state{
		agents:      make(map[uuid.UUID]models.Agent),
		externalIDs: make(map[string]uuid.UUID),
		jobs:        make(map[uuid.UUID]models.Job),
		services:    make(map[uuid.UUID]models.Service),
		reviews:     make(map[uuid.UUID]models.Review),
		reviewKeys:  make(map[[2]uuid.UUID]struct{}),
	}
}

// clone copies the containers. Entity values are stored by value so a shallow copy is
// enough as long as pointer fields are replaced, never mutated in place.
func (s *state) clone() *state {
	return &state{
		agents:       maps.Clone(s.agents),
		agentOrder:   slices.Clone(s.agentOrder),
		externalIDs:  maps.Clone(s.externalIDs),
		jobs:         maps.Clone(s.jobs),
		jobOrder:     slices.Clone(s.jobOrder),
		services:     maps.Clone(s.services),
		serviceOrder: slices.Clone(s.serviceOrder),
		reviews:      maps.Clone(s.reviews),
		reviewOrder:  slices.Clone(s.reviewOrder),
		reviewKeys:   maps.Clone(s.reviewKeys),
		txs:          slices.Clone(s.txs),
		platform:     s.platform,
	}
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state, readOnly: true})
}

func (s *Store) Close() {}

var _ store.Store = (*Store)(nil)
