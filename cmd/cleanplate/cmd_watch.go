package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/service"
	"cleanplate/internal/platform/httpserver"
	"cleanplate/pkg/platform/httputil"
	"cleanplate/pkg/platform/middleware/requestid"
	"cleanplate/pkg/platform/middleware/requesttime"
	"cleanplate/pkg/requestcontext"
)

const shutdownGrace = 5 * time.Second

func newWatchCmd(c *cli) *cobra.Command {
	var interval time.Duration
	var addr string
	var origins []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the recent actions feed and serve it with health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("invalid --interval %s: must be positive", interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = c.app.cfg.Metrics.Addr
			}
			w := newWatcher(c.app)
			srv := httpserver.New(addr, w.routes(origins))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpserver.Run(gctx, srv, shutdownGrace, c.app.logger)
			})
			g.Go(func() error {
				w.poll(gctx, interval)
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "time between feed refreshes")
	cmd.Flags().StringVar(&addr, "addr", "", "status server address (default from config)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", []string{"*"}, "origins allowed to read the status server")
	return cmd
}

// watcher keeps the latest recent actions feed for the status server.
type watcher struct {
	app *app

	mu       sync.RWMutex
	activity *service.Activity
	updated  time.Time
}

func newWatcher(a *app) *watcher {
	return &watcher{app: a}
}

// poll refreshes the feed immediately, then every interval until ctx ends.
func (w *watcher) poll(ctx context.Context, interval time.Duration) {
	w.refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *watcher) refresh(ctx context.Context) {
	now := requestcontext.Now(ctx)
	activity, err := w.app.service.RecentActivity(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			w.app.logger.WarnContext(ctx, "refreshing recent actions failed", "error", err)
		}
		return
	}
	w.mu.Lock()
	w.activity, w.updated = &activity, now
	w.mu.Unlock()
	w.app.logger.InfoContext(ctx, "recent actions refreshed",
		"graded", len(activity.Graded),
		"closed", len(activity.Closed),
		"reopened", len(activity.Reopened),
	)
}

func (w *watcher) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", w.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(w.app.registry, promhttp.HandlerOpts{}))
	r.Get("/recent", w.handleRecent)
	r.Get("/establishments/{camis}", w.handleEstablishment)

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestid.Header},
	}).Handler(r)
}

func (w *watcher) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	if w.app.client.Degraded() {
		httputil.WriteError(rw, http.StatusServiceUnavailable, "degraded", "")
		return
	}
	httputil.WriteJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

type detailResponse struct {
	CAMIS   string `json:"camis"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Cuisine string `json:"cuisine,omitempty"`
	Status  string `json:"status"`
	Grade   string `json:"grade,omitempty"`
	Since   string `json:"since,omitempty"`
}

func toResponse(d service.Detail) detailResponse {
	return detailResponse{
		CAMIS:   d.Establishment.CAMIS,
		Name:    d.Establishment.Name,
		Address: d.Establishment.FullAddress(),
		Cuisine: d.Establishment.Cuisine,
		Status:  d.Resolution.Status.String(),
		Grade:   d.Resolution.Grade,
		Since:   d.Resolution.Since,
	}
}

func toResponses(details []service.Detail) []detailResponse {
	out := make([]detailResponse, len(details))
	for i, d := range details {
		out[i] = toResponse(d)
	}
	return out
}

type activityResponse struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Graded    []detailResponse `json:"recently_graded"`
	Closed    []detailResponse `json:"recently_closed"`
	Reopened  []detailResponse `json:"recently_reopened"`
}

func (w *watcher) handleRecent(rw http.ResponseWriter, _ *http.Request) {
	w.mu.RLock()
	activity, updated := w.activity, w.updated
	w.mu.RUnlock()
	if activity == nil {
		httputil.WriteError(rw, http.StatusServiceUnavailable, "not_ready", "")
		return
	}
	httputil.WriteJSON(rw, http.StatusOK, activityResponse{
		UpdatedAt: updated,
		Graded:    toResponses(activity.Graded),
		Closed:    toResponses(activity.Closed),
		Reopened:  toResponses(activity.Reopened),
	})
}

func (w *watcher) handleEstablishment(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := w.app.service.Lookup(ctx, chi.URLParam(r, "camis"), requestcontext.Now(ctx))
	if err != nil {
		status, code := errorStatus(err)
		httputil.WriteError(rw, status, code, client.UserMessage(err))
		return
	}
	httputil.WriteJSON(rw, http.StatusOK, toResponse(d))
}

func errorStatus(err error) (int, string) {
	switch {
	case client.KindOf(err) == client.KindValidation:
		return http.StatusBadRequest, "bad_request"
	case client.StatusCode(err) == http.StatusNotFound:
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}
