package form

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store keeps the live forms of the service, keyed by id
type Store struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	forms map[string]*Form
}

// NewStore creates an empty store. Every form it creates shares cfg and deps.
func NewStore(cfg Config, deps Deps) *Store {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		ctx:    ctx,
		cancel: cancel,
		forms:  make(map[string]*Form),
	}
}

// Create starts a new form with a generated id
func (s *Store) Create() *Form {
	f := New(s.ctx, uuid.NewString(), s.cfg, s.deps)

	s.mu.Lock()
	s.forms[f.ID()] = f
	s.mu.Unlock()

	s.logger.Info("form created", zap.String("form_id", f.ID()))
	return f
}

// Get returns the form with id
func (s *Store) Get(id string) (*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	return f, nil
}

// Delete closes and removes a form
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	f, ok := s.forms[id]
	delete(s.forms, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}

	f.Close()
	s.logger.Info("form closed", zap.String("form_id", id))
	return nil
}

// Len returns the number of live forms
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forms)
}

// Close closes every form
func (s *Store) Close() {
	s.mu.Lock()
	forms := s.forms
	s.forms = make(map[string]*Form)
	s.mu.Unlock()

	for _, f := range forms {
		f.Close()
	}
	s.cancel()
}

func sortBySeq(fields []*mountedField) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].seq < fields[j].seq })
}
