//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/establishment/store"
	"cleanplate/pkg/requestcontext"
	"cleanplate/pkg/testutil/containers"
)

type PostgresCacheSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	cache    *store.PostgresCache
}

func TestPostgresCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCacheSuite))
}

func (s *PostgresCacheSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.cache = store.NewPostgresCache(s.postgres.DB, 10*time.Minute, nil)
	s.Require().NoError(s.cache.EnsureSchema(context.Background()))
}

func (s *PostgresCacheSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "establishment_cache"))
}

func (s *PostgresCacheSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *PostgresCacheSuite) TestSaveAndFind() {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	record := models.Establishment{
		CAMIS:   "50000001",
		Name:    "BLUE HILL",
		Borough: "MANHATTAN",
		Inspections: []models.Inspection{{
			Date:   "2024-05-01T00:00:00",
			Grade:  models.Grade("B"),
			Action: models.NewAction("Establishment Closed by DOHMH."),
		}},
	}
	s.Require().NoError(s.cache.Save(s.at(now), record))

	got, err := s.cache.Find(s.at(now.Add(time.Minute)), "50000001")
	s.Require().NoError(err)
	s.Equal("BLUE HILL", got.Name)
	s.Require().Len(got.Inspections, 1)
	s.Equal(models.ActionClosed, got.Inspections[0].Action.Kind)
}

func (s *PostgresCacheSuite) TestUpsertReplacesSnapshot() {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.Save(s.at(now), models.Establishment{CAMIS: "50000002", Name: "OLD"}))
	s.Require().NoError(s.cache.Save(s.at(now.Add(time.Minute)), models.Establishment{CAMIS: "50000002", Name: "NEW"}))

	got, err := s.cache.Find(s.at(now.Add(2*time.Minute)), "50000002")
	s.Require().NoError(err)
	s.Equal("NEW", got.Name)
}

func (s *PostgresCacheSuite) TestExpiredSnapshotIsMiss() {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.Save(s.at(now), models.Establishment{CAMIS: "50000003"}))

	_, err := s.cache.Find(s.at(now.Add(11*time.Minute)), "50000003")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresCacheSuite) TestPurge() {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.Save(s.at(now), models.Establishment{CAMIS: "50000004"}))
	s.Require().NoError(s.cache.Save(s.at(now.Add(15*time.Minute)), models.Establishment{CAMIS: "50000005"}))

	purged, err := s.cache.Purge(s.at(now.Add(20 * time.Minute)))
	s.Require().NoError(err)
	s.Equal(int64(1), purged)

	_, err = s.cache.Find(s.at(now.Add(20*time.Minute)), "50000005")
	s.NoError(err)
}

func (s *PostgresCacheSuite) TestDelete() {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.Save(s.at(now), models.Establishment{CAMIS: "50000006"}))
	s.Require().NoError(s.cache.Delete(context.Background(), "50000006"))

	_, err := s.cache.Find(s.at(now), "50000006")
	s.ErrorIs(err, store.ErrNotFound)
}
