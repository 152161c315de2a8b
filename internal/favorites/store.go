// Package favorites keeps the signed-in user's favorite establishments with
// optimistic updates.
//
// Add and Remove change the local set at once and sync with the service in
// the background. A failed call undoes only its own change, and only when no
// later mutation of the same establishment or full refresh has replaced it.
// Calls for one establishment reach the service in the order they were
// issued; calls for different establishments run in parallel.
package favorites

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
)

// API is the subset of the lookup client used for favorites.
type API interface {
	AddFavorite(ctx context.Context, camis string, auth client.TokenSource) error
	RemoveFavorite(ctx context.Context, camis string, auth client.TokenSource) error
	Favorites(ctx context.Context, auth client.TokenSource) ([]models.Establishment, error)
}

// Op names a mutation.
type Op string

const (
	OpAdd    Op = "add_favorite"
	OpRemove Op = "remove_favorite"
)

// ErrorHandler receives failed mutations after any rollback was applied.
type ErrorHandler func(op Op, e models.Establishment, err error)

// Mutation is the handle of one optimistic change.
type Mutation struct {
	Op            Op
	Establishment models.Establishment

	done       chan struct{}
	err        error
	skipped    bool
	rolledBack bool
}

// Done is closed once the service call finished and any rollback happened.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation completes or ctx ends and returns its error.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the service error once Done is closed.
func (m *Mutation) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Skipped reports whether the mutation did nothing: no identity token or no
// establishment identifier.
func (m *Mutation) Skipped() bool { return m.skipped }

// RolledBack reports whether the local change was undone after a failure.
// Only meaningful once Done is closed.
func (m *Mutation) RolledBack() bool {
	select {
	case <-m.done:
		return m.rolledBack
	default:
		return false
	}
}

func skipped(op Op, e models.Establishment) *Mutation {
	m := &Mutation{Op: op, Establishment: e, done: make(chan struct{}), skipped: true}
	close(m.done)
	return m
}

// Store is the favorites set keyed by establishment identifier.
type Store struct {
	api     API
	auth    client.TokenSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	onError ErrorHandler

	mu    sync.Mutex
	items map[string]models.Establishment
	// seq counts mutations per identifier; tail is the completion channel of
	// the newest one. Both entries go away when the newest one completes.
	seq  map[string]uint64
	tail map[string]chan struct{}
	// epoch changes on every full replacement of items.
	epoch uint64

	wg sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics counts rollbacks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithErrorHandler reports failed mutations to fn.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Store) {
		s.onError = fn
	}
}

// New constructs an empty Store. auth supplies the identity token; without
// one every operation is a no-op.
func New(api API, auth client.TokenSource, opts ...Option) (*Store, error) {
	if api == nil {
		return nil, errors.New("favorites api is required")
	}
	if auth == nil {
		return nil, errors.New("token source is required")
	}
	s := &Store{
		api:    api,
		auth:   auth,
		logger: slog.Default(),
		items:  make(map[string]models.Establishment),
		seq:    make(map[string]uint64),
		tail:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Contains reports whether camis is a favorite.
func (s *Store) Contains(camis string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[camis]
	return ok
}

// Len returns the number of favorites.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// List returns the favorites ordered by name, then identifier.
func (s *Store) List() []models.Establishment {
	s.mu.Lock()
	out := make([]models.Establishment, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b models.Establishment) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.CAMIS, b.CAMIS))
	})
	return out
}

// Add marks e as a favorite and syncs in the background.
func (s *Store) Add(ctx context.Context, e models.Establishment) *Mutation {
	return s.mutate(ctx, OpAdd, e, func(items map[string]models.Establishment) {
		items[e.CAMIS] = e
	}, s.api.AddFavorite)
}

// Remove unmarks e and syncs in the background.
func (s *Store) Remove(ctx context.Context, e models.Establishment) *Mutation {
	return s.mutate(ctx, OpRemove, e, func(items map[string]models.Establishment) {
		delete(items, e.CAMIS)
	}, s.api.RemoveFavorite)
}

// Toggle adds e when absent and removes it when present.
func (s *Store) Toggle(ctx context.Context, e models.Establishment) *Mutation {
	if s.Contains(e.CAMIS) {
		return s.Remove(ctx, e)
	}
	return s.Add(ctx, e)
}

type remoteCall func(ctx context.Context, camis string, auth client.TokenSource) error

func (s *Store) mutate(ctx context.Context, op Op, e models.Establishment, apply func(map[string]models.Establishment), call remoteCall) *Mutation {
	id := e.CAMIS
	if id == "" || !s.signedIn(ctx) {
		return skipped(op, e)
	}

	m := &Mutation{Op: op, Establishment: e, done: make(chan struct{})}

	s.mu.Lock()
	prev, had := s.items[id]
	apply(s.items)
	s.seq[id]++
	seq, epoch := s.seq[id], s.epoch
	after := s.tail[id]
	s.tail[id] = m.done
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(m.done)

		if after != nil {
			<-after
		}
		err := call(ctx, id, s.auth)

		s.mu.Lock()
		if err != nil && s.seq[id] == seq && s.epoch == epoch {
			if had {
				s.items[id] = prev
			} else {
				delete(s.items, id)
			}
			m.rolledBack = true
		}
		if s.tail[id] == m.done {
			delete(s.tail, id)
			delete(s.seq, id)
		}
		s.mu.Unlock()

		if err == nil {
			return
		}
		m.err = err
		if m.rolledBack {
			s.metrics.IncrementRollback(string(op))
		}
		s.logger.WarnContext(ctx, "favorite sync failed",
			"op", op,
			"camis", id,
			"rolled_back", m.rolledBack,
			"error", err,
		)
		if s.onError != nil {
			s.onError(op, e, err)
		}
	}()
	return m
}

// FetchAll replaces the set with the service's list. On failure the set is
// left as it was.
func (s *Store) FetchAll(ctx context.Context) error {
	if !s.signedIn(ctx) {
		return nil
	}
	list, err := s.api.Favorites(ctx, s.auth)
	if err != nil {
		s.logger.WarnContext(ctx, "fetching favorites failed", "error", err)
		return err
	}
	items := make(map[string]models.Establishment, len(list))
	for _, e := range list {
		if e.CAMIS != "" {
			items[e.CAMIS] = e
		}
	}
	s.mu.Lock()
	s.items = items
	s.epoch++
	s.mu.Unlock()
	return nil
}

// Clear empties the set, as on sign-out. In-flight mutations no longer roll
// back into it.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = make(map[string]models.Establishment)
	s.epoch++
	s.mu.Unlock()
}

// Wait blocks until every background sync has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) signedIn(ctx context.Context) bool {
	token, err := s.auth.Token(ctx)
	return err == nil && token != ""
}
