// Package search drives paginated establishment searches.
//
// A Controller owns the search term, filters and results. Every state change
// happens under its mutex; network calls never hold it. A new search cancels
// the one in flight, and a generation counter drops any result that still
// arrives for a superseded search.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cleanplate/internal/client"
	"cleanplate/internal/client/validate"
	"cleanplate/internal/establishment/models"
)

// DefaultDebounce is the quiet period before filter changes trigger a search.
const DefaultDebounce = 300 * time.Millisecond

// ErrSuperseded is returned by a search whose result was dropped because a
// newer search or a reset replaced it.
var ErrSuperseded = errors.New("search superseded")

// State is the lifecycle of the current search.
type State int

const (
	Idle State = iota
	Loading
	Success
	LoadingMore
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case LoadingMore:
		return "loading_more"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// Searcher fetches one page of results.
type Searcher interface {
	Search(ctx context.Context, p client.SearchParams) ([]models.Establishment, error)
}

// RecentSearchRecorder saves a term after a successful new search.
type RecentSearchRecorder interface {
	Record(ctx context.Context, term string) error
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	State State
	Term  string
	// Items holds the results for Success and LoadingMore.
	Items       []models.Establishment
	Message     string
	Filters     Filters
	Page        int
	CanLoadMore bool
}

// Controller runs searches and pagination for one search screen.
type Controller struct {
	searcher Searcher
	recorder RecentSearchRecorder
	pageSize int
	debounce time.Duration
	logger   *slog.Logger
	observer func(Snapshot)

	mu        sync.Mutex
	state     State
	term      string
	items     []models.Establishment
	message   string
	filters   Filters
	page      int
	lastCount int
	gen       uint64
	cancel    context.CancelFunc
	timer     *time.Timer
	closed    bool

	// base is cancelled by Close; debounced searches and recordings run under it.
	base       context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize sets the number of results requested per page.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithDebounce sets the filter debounce period.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRecorder records the term of every successful new search.
func WithRecorder(r RecentSearchRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that caused the change, outside the lock.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// New constructs a Controller.
func New(searcher Searcher, opts ...Option) (*Controller, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		searcher:   searcher,
		pageSize:   client.DefaultPageSize,
		debounce:   DefaultDebounce,
		logger:     slog.Default(),
		base:       base,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CanLoadMore reports whether another page may exist. A full last page is
// taken to mean more results; an exact multiple of the page size yields one
// empty extra fetch.
func (c *Controller) CanLoadMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canLoadMoreLocked()
}

// SetTerm changes the search term without searching.
func (c *Controller) SetTerm(term string) {
	c.mu.Lock()
	c.term = term
	c.mu.Unlock()
}

// Search sets the term and performs a new search.
func (c *Controller) Search(ctx context.Context, term string) error {
	c.SetTerm(term)
	return c.PerformSearch(ctx)
}

// PerformSearch fetches page one for the current term and filters,
// replacing any results. An empty term resets the controller.
func (c *Controller) PerformSearch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if strings.TrimSpace(c.term) == "" {
		c.resetLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}
	term, err := validate.SearchTerm(c.term)
	if err != nil {
		c.nextGenLocked()
		c.state, c.items, c.message, c.lastCount = Error, nil, err.Error(), 0
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return client.ValidationError("search", err)
	}

	gen := c.nextGenLocked()
	callCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state, c.items, c.message = Loading, nil, ""
	c.page, c.lastCount = 1, 0
	params := c.filters.Params(term, 1, c.pageSize)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	results, err := c.searcher.Search(callCtx, params)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.cancel = nil
	switch {
	case err != nil && ctx.Err() != nil:
		// The caller gave up; nothing replaced this search.
		c.state, c.page = Idle, 0
	case err != nil:
		c.state, c.message = Error, client.UserMessage(err)
	default:
		c.state, c.items, c.lastCount = Success, dedupe(nil, results), len(results)
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if err != nil {
		c.logger.WarnContext(ctx, "search failed",
			"term", term,
			"error", err,
		)
		return err
	}
	c.record(term)
	return nil
}

// LoadMore appends the next page. It does nothing unless the last search
// succeeded and CanLoadMore holds.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state != Success || !c.canLoadMoreLocked() {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	callCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = LoadingMore
	page := c.page + 1
	params := c.filters.Params(strings.TrimSpace(c.term), page, c.pageSize)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	results, err := c.searcher.Search(callCtx, params)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.state != LoadingMore {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.cancel = nil
	switch {
	case err != nil && ctx.Err() != nil:
		c.state = Success
	case err != nil:
		c.state, c.message, c.lastCount = Error, client.UserMessage(err), 0
	default:
		c.state, c.page, c.lastCount = Success, page, len(results)
		c.items = dedupe(c.items, results)
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if err != nil {
		c.logger.WarnContext(ctx, "loading more results failed",
			"page", page,
			"error", err,
		)
		return err
	}
	return nil
}

// SetSort changes the sort order.
func (c *Controller) SetSort(s Sort) {
	c.setFilter(func(f *Filters) { f.Sort = s })
}

// SetBorough changes the borough filter; "" clears it.
func (c *Controller) SetBorough(b string) {
	c.setFilter(func(f *Filters) { f.Borough = b })
}

// SetGrade changes the grade filter; "" clears it.
func (c *Controller) SetGrade(g string) {
	c.setFilter(func(f *Filters) { f.Grade = g })
}

// SetCuisine changes the cuisine filter; "" clears it.
func (c *Controller) SetCuisine(cuisine string) {
	c.setFilter(func(f *Filters) { f.Cuisine = cuisine })
}

// setFilter applies change and, while a search is active, schedules one
// re-search after the debounce period. Further changes restart the period.
func (c *Controller) setFilter(change func(*Filters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	change(&c.filters)
	if c.closed || strings.TrimSpace(c.term) == "" || c.state == Idle {
		return
	}
	c.stopTimerLocked()
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		if err := c.PerformSearch(c.base); err != nil && !errors.Is(err, ErrSuperseded) {
			c.logger.Debug("debounced search failed", "error", err)
		}
	})
}

// ResetSearch returns to Idle, clearing the term, results, page and filters.
func (c *Controller) ResetSearch() {
	c.mu.Lock()
	c.resetLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Wait blocks until pending debounced searches and recent search recordings
// have finished, without cancelling them.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight work and pending debounced searches and waits for
// background goroutines to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.nextGenLocked()
	c.mu.Unlock()
	c.baseCancel()
	c.wg.Wait()
}

func (c *Controller) resetLocked() {
	c.nextGenLocked()
	c.stopTimerLocked()
	c.state, c.term, c.items, c.message = Idle, "", nil, ""
	c.page, c.lastCount = 0, 0
	c.filters = Filters{}
}

// nextGenLocked supersedes whatever is in flight.
func (c *Controller) nextGenLocked() uint64 {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	return c.gen
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

func (c *Controller) canLoadMoreLocked() bool {
	return c.lastCount == c.pageSize
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:       c.state,
		Term:        c.term,
		Message:     c.message,
		Filters:     c.filters,
		Page:        c.page,
		CanLoadMore: c.state == Success && c.canLoadMoreLocked(),
	}
	if c.state == Success || c.state == LoadingMore {
		snap.Items = append([]models.Establishment(nil), c.items...)
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.observer != nil {
		c.observer(snap)
	}
}

func (c *Controller) record(term string) {
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		if err := c.recorder.Record(c.base, term); err != nil {
			c.logger.Debug("recording recent search failed", "error", err)
		}
	}()
}

// dedupe appends the results not already present in items.
func dedupe(items, results []models.Establishment) []models.Establishment {
	seen := make(map[string]struct{}, len(items)+len(results))
	out := make([]models.Establishment, 0, len(items)+len(results))
	for _, list := range [][]models.Establishment{items, results} {
		for _, e := range list {
			if e.CAMIS != "" {
				if _, dup := seen[e.CAMIS]; dup {
					continue
				}
				seen[e.CAMIS] = struct{}{}
			}
			out = append(out, e)
		}
	}
	return out
}
