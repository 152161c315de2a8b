// Package session tracks the signed-in user and the data that belongs to
// them: identity token, favorites and recent searches.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
	"cleanplate/internal/session/securestore"
	"cleanplate/pkg/requestcontext"
)

// SecureStore persists credentials under fixed namespaces.
type SecureStore interface {
	Save(ctx context.Context, key, value string) error
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// API is the subset of the lookup client used for account data.
type API interface {
	CreateUser(ctx context.Context, identityToken string) error
	DeleteUser(ctx context.Context, auth client.TokenSource) error
	RecentSearches(ctx context.Context, auth client.TokenSource) ([]models.RecentSearch, error)
	SaveRecentSearch(ctx context.Context, term string, auth client.TokenSource) error
	ClearRecentSearches(ctx context.Context, auth client.TokenSource) error
}

// Favorites is the per-user favorites set refreshed and cleared with the
// session.
type Favorites interface {
	FetchAll(ctx context.Context) error
	Clear()
}

// Manager owns the current session. It is the TokenSource for every call
// that needs the user's identity token.
type Manager struct {
	api     API
	store   SecureStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	userID    string
	token     string
	favorites Favorites
	recent    []models.RecentSearch
	// recentEpoch changes whenever recent is replaced.
	recentEpoch uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics counts rollbacks of optimistic clears.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// New constructs a signed-out Manager.
func New(api API, store SecureStore, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("account api is required")
	}
	if store == nil {
		return nil, errors.New("secure store is required")
	}
	m := &Manager{
		api:    api,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AttachFavorites links the favorites set refreshed on sign-in and cleared
// on sign-out. The set usually takes the Manager as its TokenSource, so it
// is attached after construction.
func (m *Manager) AttachFavorites(f Favorites) {
	m.mu.Lock()
	m.favorites = f
	m.mu.Unlock()
}

// SignedIn returns the user identifier and whether a user is signed in.
func (m *Manager) SignedIn() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID, m.token != ""
}

// Token returns the identity token. It fails with client.ErrUnauthenticated
// when signed out or when the token's expiry has passed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return "", client.ErrUnauthenticated
	}
	if exp, ok := TokenExpiry(token); ok && !requestcontext.Now(ctx).Before(exp) {
		return "", fmt.Errorf("%w: identity token expired at %s", client.ErrUnauthenticated, exp.UTC().Format(time.RFC3339))
	}
	return token, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The service verifies the token; the client only needs to know when to stop
// sending it. Opaque tokens have no known expiry.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Restore loads credentials saved by an earlier SignIn. With both present
// the user is signed in and their data is fetched; fetch failures are logged.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	userID, okUser, err := m.store.Read(ctx, securestore.UserIDKey)
	if err != nil {
		return false, err
	}
	token, okToken, err := m.store.Read(ctx, securestore.TokenKey)
	if err != nil {
		return false, err
	}
	if !okUser || !okToken || userID == "" || token == "" {
		return false, nil
	}

	m.mu.Lock()
	m.userID, m.token = userID, token
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session restored", "user_id", userID)
	if err := m.Refresh(ctx); err != nil {
		m.logger.WarnContext(ctx, "refreshing user data failed", "error", err)
	}
	return true, nil
}

// SignIn registers identityToken with the service, persists the credentials
// and fetches the user's data. Nothing is saved when registration fails.
func (m *Manager) SignIn(ctx context.Context, userID, identityToken string) error {
	userID, identityToken = strings.TrimSpace(userID), strings.TrimSpace(identityToken)
	if userID == "" || identityToken == "" {
		return fmt.Errorf("%w: user id and identity token are required", client.ErrUnauthenticated)
	}
	if err := m.api.CreateUser(ctx, identityToken); err != nil {
		return err
	}
	if err := m.store.Save(ctx, securestore.UserIDKey, userID); err != nil {
		return err
	}
	if err := m.store.Save(ctx, securestore.TokenKey, identityToken); err != nil {
		return err
	}

	m.mu.Lock()
	m.userID, m.token = userID, identityToken
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "signed in", "user_id", userID)
	if err := m.Refresh(ctx); err != nil {
		m.logger.WarnContext(ctx, "refreshing user data failed", "error", err)
	}
	return nil
}

// SignOut forgets the credentials and clears the user's favorites and recent
// searches. Local state is cleared even when the secure store fails.
func (m *Manager) SignOut(ctx context.Context) error {
	err := errors.Join(
		m.store.Delete(ctx, securestore.UserIDKey),
		m.store.Delete(ctx, securestore.TokenKey),
	)

	m.mu.Lock()
	userID := m.userID
	m.userID, m.token = "", ""
	m.recent = nil
	m.recentEpoch++
	favorites := m.favorites
	m.mu.Unlock()

	if favorites != nil {
		favorites.Clear()
	}
	m.logger.InfoContext(ctx, "signed out", "user_id", userID)
	return err
}

// DeleteAccount deletes the user on the service, then signs out.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	if _, err := m.Token(ctx); err != nil {
		return err
	}
	if err := m.api.DeleteUser(ctx, m); err != nil {
		return err
	}
	return m.SignOut(ctx)
}

// Refresh fetches favorites and recent searches in parallel.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	favorites := m.favorites
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	if favorites != nil {
		g.Go(func() error { return favorites.FetchAll(gctx) })
	}
	g.Go(func() error { return m.RefreshRecentSearches(gctx) })
	return g.Wait()
}

// RecentSearches returns the last fetched recent searches.
func (m *Manager) RecentSearches() []models.RecentSearch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RecentSearch(nil), m.recent...)
}

// RefreshRecentSearches replaces the recent searches with the service's list.
// It does nothing when signed out.
func (m *Manager) RefreshRecentSearches(ctx context.Context) error {
	if !m.hasToken(ctx) {
		return nil
	}
	list, err := m.api.RecentSearches(ctx, m)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.recent = list
	m.recentEpoch++
	m.mu.Unlock()
	return nil
}

// Record saves term as a recent search and refreshes the list. It does
// nothing when signed out.
func (m *Manager) Record(ctx context.Context, term string) error {
	if !m.hasToken(ctx) {
		return nil
	}
	if err := m.api.SaveRecentSearch(ctx, term, m); err != nil {
		return err
	}
	return m.RefreshRecentSearches(ctx)
}

// ClearRecentSearches empties the list at once and restores it if the
// service call fails, unless the list was replaced meanwhile.
func (m *Manager) ClearRecentSearches(ctx context.Context) error {
	if !m.hasToken(ctx) {
		return nil
	}
	m.mu.Lock()
	previous := m.recent
	m.recent = nil
	m.recentEpoch++
	epoch := m.recentEpoch
	m.mu.Unlock()

	err := m.api.ClearRecentSearches(ctx, m)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	restored := m.recentEpoch == epoch
	if restored {
		m.recent = previous
		m.recentEpoch++
	}
	m.mu.Unlock()
	if restored {
		m.metrics.IncrementRollback("clear_recent_searches")
	}
	m.logger.WarnContext(ctx, "clearing recent searches failed",
		"rolled_back", restored,
		"error", err,
	)
	return err
}

func (m *Manager) hasToken(ctx context.Context) bool {
	_, err := m.Token(ctx)
	return err == nil
}
