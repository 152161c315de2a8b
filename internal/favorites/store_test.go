package favorites_test

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks API

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/favorites"
	"cleanplate/internal/favorites/mocks"
	"cleanplate/internal/platform/logger"
	"cleanplate/internal/platform/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type StoreSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	api     *mocks.MockAPI
	metrics *metrics.Metrics
	store   *favorites.Store

	mu     sync.Mutex
	failed []favorites.Op
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.api = mocks.NewMockAPI(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.failed = nil
	store, err := favorites.New(s.api, client.StaticToken("id-token"),
		favorites.WithLogger(logger.Discard()),
		favorites.WithMetrics(s.metrics),
		favorites.WithErrorHandler(func(op favorites.Op, _ models.Establishment, _ error) {
			s.mu.Lock()
			s.failed = append(s.failed, op)
			s.mu.Unlock()
		}),
	)
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreSuite) TearDownTest() {
	s.store.Wait()
}

func (s *StoreSuite) wait(m *favorites.Mutation) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return m.Wait(ctx)
}

func place(camis, name string) models.Establishment {
	return models.Establishment{CAMIS: camis, Name: name}
}

var errOffline = &client.Error{Kind: client.KindNetwork, Message: "request failed"}

// =============================================================================
// Optimistic add and remove
// =============================================================================

func (s *StoreSuite) TestAddIsVisibleBeforeTheCallReturns() {
	release := make(chan struct{})
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).
		DoAndReturn(func(context.Context, string, client.TokenSource) error {
			<-release
			return nil
		})

	m := s.store.Add(context.Background(), place("41234567", "JOE'S PIZZA"))
	s.True(s.store.Contains("41234567"))
	s.False(m.RolledBack())

	close(release)
	s.NoError(s.wait(m))
	s.True(s.store.Contains("41234567"))
}

func (s *StoreSuite) TestFailedAddRollsBack() {
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).Return(errOffline)

	m := s.store.Add(context.Background(), place("41234567", "JOE'S PIZZA"))
	err := s.wait(m)

	s.Equal(client.KindNetwork, client.KindOf(err))
	s.True(m.RolledBack())
	s.False(s.store.Contains("41234567"))
	s.Equal([]favorites.Op{favorites.OpAdd}, s.failed)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Rollbacks.WithLabelValues("add_favorite")))
}

func (s *StoreSuite) TestFailedRemoveRestoresPreviousValue() {
	original := place("41234567", "JOE'S PIZZA")
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).Return(nil)
	s.Require().NoError(s.wait(s.store.Add(context.Background(), original)))

	s.api.EXPECT().RemoveFavorite(gomock.Any(), "41234567", gomock.Any()).Return(errOffline)
	m := s.store.Remove(context.Background(), original)
	s.False(s.store.Contains("41234567"))

	s.Error(s.wait(m))
	s.True(m.RolledBack())
	if diff := cmp.Diff([]models.Establishment{original}, s.store.List()); diff != "" {
		s.Failf("favorites mismatch", "(-want +got):\n%s", diff)
	}
}

func (s *StoreSuite) TestToggle() {
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).Return(nil)
	s.api.EXPECT().RemoveFavorite(gomock.Any(), "41234567", gomock.Any()).Return(nil)

	e := place("41234567", "JOE'S PIZZA")
	s.Equal(favorites.OpAdd, s.store.Toggle(context.Background(), e).Op)
	m := s.store.Toggle(context.Background(), e)
	s.Equal(favorites.OpRemove, m.Op)
	s.NoError(s.wait(m))
	s.Zero(s.store.Len())
}

// =============================================================================
// Ordering and supersession
// =============================================================================

func (s *StoreSuite) TestCallsForOneEstablishmentRunInIssueOrder() {
	addRelease := make(chan struct{})
	var addReturned bool
	var mu sync.Mutex

	gomock.InOrder(
		s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).
			DoAndReturn(func(context.Context, string, client.TokenSource) error {
				<-addRelease
				mu.Lock()
				addReturned = true
				mu.Unlock()
				return errOffline
			}),
		s.api.EXPECT().RemoveFavorite(gomock.Any(), "41234567", gomock.Any()).
			DoAndReturn(func(context.Context, string, client.TokenSource) error {
				mu.Lock()
				defer mu.Unlock()
				s.True(addReturned, "remove reached the service before add finished")
				return nil
			}),
	)

	e := place("41234567", "JOE'S PIZZA")
	add := s.store.Add(context.Background(), e)
	remove := s.store.Remove(context.Background(), e)
	close(addRelease)

	s.Error(s.wait(add))
	s.NoError(s.wait(remove))

	// The failed add was superseded by the remove; its rollback must not
	// resurrect or delete anything the remove decided.
	s.False(add.RolledBack())
	s.False(s.store.Contains("41234567"))
}

func (s *StoreSuite) TestSupersededFailureKeepsNewerValue() {
	first := make(chan struct{})
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).
		DoAndReturn(func(context.Context, string, client.TokenSource) error {
			<-first
			return errOffline
		})
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).Return(nil)

	older := s.store.Add(context.Background(), place("41234567", "OLD NAME"))
	newer := s.store.Add(context.Background(), place("41234567", "NEW NAME"))
	close(first)

	s.Error(s.wait(older))
	s.NoError(s.wait(newer))
	s.False(older.RolledBack())
	s.Require().Equal(1, s.store.Len())
	s.Equal("NEW NAME", s.store.List()[0].Name)
}

func (s *StoreSuite) TestDistinctEstablishmentsRunInParallel() {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	s.api.EXPECT().AddFavorite(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, client.TokenSource) error {
			started.Done()
			<-release
			return nil
		}).Times(2)

	a := s.store.Add(context.Background(), place("1", "A"))
	b := s.store.Add(context.Background(), place("2", "B"))

	bothStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(bothStarted)
	}()
	select {
	case <-bothStarted:
	case <-time.After(time.Second):
		s.Fail("calls for distinct establishments did not overlap")
	}
	close(release)
	s.NoError(s.wait(a))
	s.NoError(s.wait(b))
}

// =============================================================================
// Full refresh
// =============================================================================

func (s *StoreSuite) TestFetchAllReplacesSet() {
	s.api.EXPECT().AddFavorite(gomock.Any(), "9", gomock.Any()).Return(nil)
	s.Require().NoError(s.wait(s.store.Add(context.Background(), place("9", "LOCAL"))))

	s.api.EXPECT().Favorites(gomock.Any(), gomock.Any()).Return([]models.Establishment{
		place("2", "BETA"), place("1", "ALPHA"), {Name: "NO ID"},
	}, nil)
	s.Require().NoError(s.store.FetchAll(context.Background()))

	s.Equal([]models.Establishment{place("1", "ALPHA"), place("2", "BETA")}, s.store.List())
}

func (s *StoreSuite) TestFetchAllFailureLeavesSetUntouched() {
	s.api.EXPECT().AddFavorite(gomock.Any(), "9", gomock.Any()).Return(nil)
	s.Require().NoError(s.wait(s.store.Add(context.Background(), place("9", "LOCAL"))))

	s.api.EXPECT().Favorites(gomock.Any(), gomock.Any()).Return(nil, errOffline)
	s.Error(s.store.FetchAll(context.Background()))
	s.True(s.store.Contains("9"))
}

func (s *StoreSuite) TestRefreshSupersedesInFlightRollback() {
	release := make(chan struct{})
	s.api.EXPECT().AddFavorite(gomock.Any(), "41234567", gomock.Any()).
		DoAndReturn(func(context.Context, string, client.TokenSource) error {
			<-release
			return errOffline
		})
	s.api.EXPECT().Favorites(gomock.Any(), gomock.Any()).Return([]models.Establishment{place("41234567", "SERVER COPY")}, nil)

	m := s.store.Add(context.Background(), place("41234567", "LOCAL COPY"))
	s.Require().NoError(s.store.FetchAll(context.Background()))
	close(release)

	s.Error(s.wait(m))
	s.False(m.RolledBack())
	s.Require().Equal(1, s.store.Len())
	s.Equal("SERVER COPY", s.store.List()[0].Name)
}

func (s *StoreSuite) TestClear() {
	s.api.EXPECT().AddFavorite(gomock.Any(), "1", gomock.Any()).Return(nil)
	s.Require().NoError(s.wait(s.store.Add(context.Background(), place("1", "A"))))

	s.store.Clear()
	s.Zero(s.store.Len())
}

// =============================================================================
// Signed out
// =============================================================================

func (s *StoreSuite) TestOperationsWithoutTokenAreNoOps() {
	store, err := favorites.New(s.api, client.StaticToken(""), favorites.WithLogger(logger.Discard()))
	s.Require().NoError(err)

	m := store.Add(context.Background(), place("1", "A"))
	s.True(m.Skipped())
	s.NoError(s.wait(m))
	s.False(store.Contains("1"))

	s.True(store.Remove(context.Background(), place("1", "A")).Skipped())
	s.NoError(store.FetchAll(context.Background()))
}

func (s *StoreSuite) TestMissingIdentifierIsSkipped() {
	m := s.store.Add(context.Background(), models.Establishment{Name: "NO ID"})
	s.True(m.Skipped())
	s.Zero(s.store.Len())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := favorites.New(nil, client.StaticToken("x"))
	if err == nil {
		t.Fatal("expected error for nil api")
	}
	ctrl := gomock.NewController(t)
	_, err = favorites.New(mocks.NewMockAPI(ctrl), nil)
	if err == nil {
		t.Fatal("expected error for nil token source")
	}
}
