package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"cleanplate/internal/client"
	"cleanplate/internal/client/validate"
	"cleanplate/internal/establishment/models"
	"cleanplate/internal/establishment/status"
	"cleanplate/pkg/platform/sentinel"
)

// RecentlyGradedLimit caps the recently graded list of the activity feed.
const RecentlyGradedLimit = 10

// API is the subset of the lookup client the service depends on.
type API interface {
	Establishment(ctx context.Context, camis string) (models.Establishment, error)
	RecentActions(ctx context.Context) (models.RecentActions, error)
	ReportIssue(ctx context.Context, r client.IssueReport) error
}

// Cache stores establishment snapshots. Find returns sentinel.ErrNotFound on
// a miss.
type Cache interface {
	Save(ctx context.Context, e models.Establishment) error
	Find(ctx context.Context, camis string) (*models.Establishment, error)
	Delete(ctx context.Context, camis string) error
}

// Detail pairs an establishment with its resolved status.
type Detail struct {
	Establishment models.Establishment
	Resolution    status.Resolution
}

// Activity is the recent actions feed with every entry resolved.
type Activity struct {
	Graded   []Detail
	Closed   []Detail
	Reopened []Detail
}

// Service looks up establishments through a read-through cache and resolves
// their display status.
type Service struct {
	api    API
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for cache warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service. The cache is optional.
func New(api API, cache Cache, opts ...Option) (*Service, error) {
	if api == nil {
		return nil, errors.New("api client is required")
	}
	s := &Service{
		api:    api,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup returns the establishment for camis resolved against now.
// Concurrent lookups of the same identifier share one network call.
func (s *Service) Lookup(ctx context.Context, camis string, now time.Time) (Detail, error) {
	camis, err := validate.Identifier(camis)
	if err != nil {
		return Detail{}, client.ValidationError("lookup", err)
	}

	if s.cache != nil {
		cached, err := s.cache.Find(ctx, camis)
		switch {
		case err == nil:
			return resolve(*cached, now), nil
		case !errors.Is(err, sentinel.ErrNotFound):
			s.logger.WarnContext(ctx, "establishment cache read failed",
				"camis", camis,
				"error", err,
			)
		}
	}

	// The shared fetch must outlive any single caller; each caller still
	// stops waiting when its own context ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(camis, func() (any, error) {
		return s.fetch(fetchCtx, camis)
	})
	select {
	case <-ctx.Done():
		return Detail{}, fmt.Errorf("lookup %s: %w", camis, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Detail{}, res.Err
		}
		e, ok := res.Val.(models.Establishment)
		if !ok {
			return Detail{}, fmt.Errorf("lookup %s: unexpected result %T", camis, res.Val)
		}
		return resolve(e, now), nil
	}
}

// Refresh drops any cached snapshot and looks camis up again.
func (s *Service) Refresh(ctx context.Context, camis string, now time.Time) (Detail, error) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, camis); err != nil {
			s.logger.WarnContext(ctx, "establishment cache delete failed",
				"camis", camis,
				"error", err,
			)
		}
	}
	return s.Lookup(ctx, camis, now)
}

func (s *Service) fetch(ctx context.Context, camis string) (models.Establishment, error) {
	e, err := s.api.Establishment(ctx, camis)
	if err != nil {
		return models.Establishment{}, err
	}
	if s.cache != nil {
		if err := s.cache.Save(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "establishment cache write failed",
				"camis", camis,
				"error", err,
			)
		}
	}
	return e, nil
}

// RecentActivity fetches the recent actions feed and resolves every entry.
// The recently graded list keeps its first RecentlyGradedLimit entries.
func (s *Service) RecentActivity(ctx context.Context, now time.Time) (Activity, error) {
	feed, err := s.api.RecentActions(ctx)
	if err != nil {
		return Activity{}, err
	}
	graded := feed.RecentlyGraded
	if len(graded) > RecentlyGradedLimit {
		graded = graded[:RecentlyGradedLimit]
	}
	return Activity{
		Graded:   ResolveAll(graded, now),
		Closed:   ResolveAll(feed.RecentlyClosed, now),
		Reopened: ResolveAll(feed.RecentlyReopened, now),
	}, nil
}

// ReportIssue submits a user report about an establishment's data.
func (s *Service) ReportIssue(ctx context.Context, camis, issueType, comments string) error {
	err := s.api.ReportIssue(ctx, client.IssueReport{
		CAMIS:     camis,
		IssueType: issueType,
		Comments:  comments,
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "issue reported",
		"camis", camis,
		"issue_type", issueType,
	)
	return nil
}

func resolve(e models.Establishment, now time.Time) Detail {
	return Detail{Establishment: e, Resolution: status.Resolve(e, now)}
}

// ResolveAll resolves every establishment in list against now.
func ResolveAll(list []models.Establishment, now time.Time) []Detail {
	out := make([]Detail, 0, len(list))
	for _, e := range list {
		out = append(out, resolve(e, now))
	}
	return out
}
