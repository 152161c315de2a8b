package session_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/favorites"
	"cleanplate/internal/platform/logger"
	"cleanplate/internal/session"
	"cleanplate/internal/session/securestore"
	"cleanplate/pkg/requestcontext"
	"cleanplate/pkg/testutil/fakeapi"
)

type ManagerSuite struct {
	suite.Suite
	server    *fakeapi.Server
	client    *client.Client
	secrets   *securestore.Memory
	manager   *session.Manager
	favorites *favorites.Store
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.server = fakeapi.New()
	s.server.AddEstablishments(
		models.Establishment{CAMIS: "41234567", Name: "JOE'S PIZZA"},
		models.Establishment{CAMIS: "50001234", Name: "PIZZA PALACE"},
	)

	c, err := client.New(client.Config{
		BaseURL: s.server.URL,
		Timeout: 2 * time.Second,
		Retry:   client.RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, client.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.client = c

	s.secrets = securestore.NewMemory()
	s.manager, err = session.New(c, s.secrets, session.WithLogger(logger.Discard()))
	s.Require().NoError(err)

	s.favorites, err = favorites.New(c, s.manager, favorites.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.manager.AttachFavorites(s.favorites)
}

func (s *ManagerSuite) TearDownTest() {
	s.favorites.Wait()
	s.server.Close()
}

func signedToken(exp time.Time) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "001234.abcd",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		panic(err)
	}
	return token
}

// =============================================================================
// Construction
// =============================================================================

func (s *ManagerSuite) TestNewRequiresDependencies() {
	_, err := session.New(nil, s.secrets)
	s.Error(err)
	_, err = session.New(s.client, nil)
	s.Error(err)
}

// =============================================================================
// Sign in and restore
// =============================================================================

func (s *ManagerSuite) TestSignIn() {
	ctx := context.Background()
	s.server.SetFavorites("identity-token", "41234567")

	s.Require().NoError(s.manager.SignIn(ctx, "001234.abcd", "identity-token"))

	userID, ok := s.manager.SignedIn()
	s.True(ok)
	s.Equal("001234.abcd", userID)
	s.True(s.server.HasUser("identity-token"))

	stored, ok, err := s.secrets.Read(ctx, securestore.TokenKey)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("identity-token", stored)

	s.True(s.favorites.Contains("41234567"), "favorites are fetched after sign-in")
}

func (s *ManagerSuite) TestSignInFailureSavesNothing() {
	ctx := context.Background()
	s.server.Fail(http.MethodPost, "/users", http.StatusInternalServerError)

	err := s.manager.SignIn(ctx, "001234.abcd", "identity-token")
	s.Require().Error(err)
	s.Equal(http.StatusInternalServerError, client.StatusCode(err))
	s.Equal(1, s.server.RequestsTo(http.MethodPost, "/users"))

	_, ok := s.manager.SignedIn()
	s.False(ok)
	_, ok, _ = s.secrets.Read(ctx, securestore.UserIDKey)
	s.False(ok)
}

func (s *ManagerSuite) TestSignInRequiresCredentials() {
	err := s.manager.SignIn(context.Background(), " ", "identity-token")
	s.ErrorIs(err, client.ErrUnauthenticated)
	s.Zero(s.server.RequestsTo(http.MethodPost, "/users"))
}

func (s *ManagerSuite) TestRestore() {
	ctx := context.Background()

	s.Run("nothing saved", func() {
		restored, err := s.manager.Restore(ctx)
		s.Require().NoError(err)
		s.False(restored)
	})

	s.Run("saved credentials sign the user in", func() {
		s.Require().NoError(s.secrets.Save(ctx, securestore.UserIDKey, "001234.abcd"))
		s.Require().NoError(s.secrets.Save(ctx, securestore.TokenKey, "identity-token"))
		s.server.SetFavorites("identity-token", "50001234")

		restored, err := s.manager.Restore(ctx)
		s.Require().NoError(err)
		s.True(restored)
		s.True(s.favorites.Contains("50001234"))
	})
}

func (s *ManagerSuite) TestRestoreSurvivesFetchFailures() {
	ctx := context.Background()
	s.Require().NoError(s.secrets.Save(ctx, securestore.UserIDKey, "001234.abcd"))
	s.Require().NoError(s.secrets.Save(ctx, securestore.TokenKey, "identity-token"))
	s.server.Fail(http.MethodGet, "/favorites", http.StatusNotFound)

	restored, err := s.manager.Restore(ctx)
	s.Require().NoError(err)
	s.True(restored)
}

// =============================================================================
// Identity token
// =============================================================================

func (s *ManagerSuite) TestTokenExpiry() {
	issued := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	token := signedToken(issued.Add(time.Hour))
	s.Require().NoError(s.manager.SignIn(context.Background(), "001234.abcd", token))

	got, err := s.manager.Token(requestcontext.WithTime(context.Background(), issued.Add(30*time.Minute)))
	s.Require().NoError(err)
	s.Equal(token, got)

	_, err = s.manager.Token(requestcontext.WithTime(context.Background(), issued.Add(2*time.Hour)))
	s.ErrorIs(err, client.ErrUnauthenticated)
	s.Contains(err.Error(), "expired")
}

func (s *ManagerSuite) TestTokenExpiryOfOpaqueToken() {
	_, ok := session.TokenExpiry("identity-token")
	s.False(ok)

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := session.TokenExpiry(signedToken(exp))
	s.True(ok)
	s.True(exp.Equal(got))
}

func (s *ManagerSuite) TestTokenWhenSignedOut() {
	_, err := s.manager.Token(context.Background())
	s.ErrorIs(err, client.ErrUnauthenticated)
}

// =============================================================================
// Recent searches
// =============================================================================

func (s *ManagerSuite) TestRecordAndClearRecentSearches() {
	ctx := context.Background()
	s.Require().NoError(s.manager.SignIn(ctx, "001234.abcd", "identity-token"))

	s.Require().NoError(s.manager.Record(ctx, "pizza"))
	s.Require().NoError(s.manager.Record(ctx, "bagels"))

	recent := s.manager.RecentSearches()
	s.Require().Len(recent, 2)
	s.Equal("bagels", recent[0].Display)

	s.Require().NoError(s.manager.ClearRecentSearches(ctx))
	s.Empty(s.manager.RecentSearches())
	s.Require().NoError(s.manager.RefreshRecentSearches(ctx))
	s.Empty(s.manager.RecentSearches())
}

func (s *ManagerSuite) TestFailedClearRestoresList() {
	ctx := context.Background()
	s.Require().NoError(s.manager.SignIn(ctx, "001234.abcd", "identity-token"))
	s.Require().NoError(s.manager.Record(ctx, "pizza"))
	s.server.Fail(http.MethodDelete, "/recent-searches", http.StatusServiceUnavailable)

	err := s.manager.ClearRecentSearches(ctx)
	s.Require().Error(err)
	s.Equal(1, s.server.RequestsTo(http.MethodDelete, "/recent-searches"), "mutations are not retried")
	s.Require().Len(s.manager.RecentSearches(), 1)
	s.Equal("pizza", s.manager.RecentSearches()[0].Display)
}

func (s *ManagerSuite) TestRecentSearchesWhenSignedOut() {
	ctx := context.Background()
	s.NoError(s.manager.Record(ctx, "pizza"))
	s.NoError(s.manager.ClearRecentSearches(ctx))
	s.NoError(s.manager.RefreshRecentSearches(ctx))
	s.Zero(s.server.RequestsTo(http.MethodPost, "/recent-searches"))
}

// =============================================================================
// Sign out and account deletion
// =============================================================================

func (s *ManagerSuite) TestSignOut() {
	ctx := context.Background()
	s.server.SetFavorites("identity-token", "41234567")
	s.Require().NoError(s.manager.SignIn(ctx, "001234.abcd", "identity-token"))
	s.Require().NoError(s.manager.Record(ctx, "pizza"))

	s.Require().NoError(s.manager.SignOut(ctx))

	_, ok := s.manager.SignedIn()
	s.False(ok)
	s.Zero(s.favorites.Len())
	s.Empty(s.manager.RecentSearches())
	_, ok, _ = s.secrets.Read(ctx, securestore.TokenKey)
	s.False(ok)

	m := s.favorites.Add(ctx, models.Establishment{CAMIS: "50001234"})
	s.True(m.Skipped(), "favorites need a signed-in user")
}

func (s *ManagerSuite) TestDeleteAccount() {
	ctx := context.Background()
	s.Require().NoError(s.manager.SignIn(ctx, "001234.abcd", "identity-token"))

	s.Require().NoError(s.manager.DeleteAccount(ctx))
	s.False(s.server.HasUser("identity-token"))
	_, ok := s.manager.SignedIn()
	s.False(ok)
}

func (s *ManagerSuite) TestDeleteAccountRequiresSession() {
	err := s.manager.DeleteAccount(context.Background())
	s.True(errors.Is(err, client.ErrUnauthenticated))
	s.Zero(s.server.RequestsTo(http.MethodDelete, "/users"))
}
