// Package fakeapi serves an in-memory imitation of the lookup service for
// tests. Responses follow the real service's JSON shapes; failures can be
// queued per method and path.
package fakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"cleanplate/internal/establishment/models"
)

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Query         map[string][]string
	Authorization string
	RequestID     string
	Body          map[string]any
}

// Report is a received issue report.
type Report struct {
	CAMIS     string `json:"camis"`
	IssueType string `json:"issue_type"`
	Comments  string `json:"comments"`
}

// Server is an httptest server backed by in-memory state.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	establishments []models.Establishment
	recent         models.RecentActions
	favorites      map[string][]string
	recentSearches map[string][]models.RecentSearch
	users          map[string]bool
	reports        []Report
	requests       []Request
	failures       map[string][]int
	nextSearchID   int
}

// New starts a plain HTTP server.
func New() *Server {
	s := newServer()
	s.Server = httptest.NewServer(s.routes())
	return s
}

// NewTLS starts a TLS server using httptest's certificate.
func NewTLS() *Server {
	s := newServer()
	s.Server = httptest.NewTLSServer(s.routes())
	return s
}

func newServer() *Server {
	return &Server{
		favorites:      make(map[string][]string),
		recentSearches: make(map[string][]models.RecentSearch),
		users:          make(map[string]bool),
		failures:       make(map[string][]int),
		nextSearchID:   1,
	}
}

// AddEstablishments seeds records returned by search, detail and favorites.
func (s *Server) AddEstablishments(es ...models.Establishment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.establishments = append(s.establishments, es...)
}

// SetRecentActions seeds the recent actions feed.
func (s *Server) SetRecentActions(ra models.RecentActions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = ra
}

// Fail makes the next len(statuses) requests to method+path answer with the
// given statuses, in order. A status of 0 hijacks and closes the connection.
func (s *Server) Fail(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], statuses...)
}

// Requests returns the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo counts requests to method+path.
func (s *Server) RequestsTo(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Favorites returns the stored favorites of the user owning token.
func (s *Server) Favorites(token string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.favorites[token]...)
}

// SetFavorites replaces the favorites of the user owning token.
func (s *Server) SetFavorites(token string, camis ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites[token] = append([]string(nil), camis...)
}

// Reports returns the received issue reports.
func (s *Server) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.reports...)
}

// HasUser reports whether an identity token was registered.
func (s *Server) HasUser(identityToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[identityToken]
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.injectFailures)

	r.Get("/search", s.handleSearch)
	r.Get("/lists/recent-actions", s.handleRecentActions)
	r.Get("/restaurant/{camis}", s.handleEstablishment)
	r.Post("/report-issue", s.handleReport)
	r.Post("/users", s.handleCreateUser)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer)
		r.Delete("/users", s.handleDeleteUser)
		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites/{camis}", s.handleRemoveFavorite)
		r.Get("/recent-searches", s.handleListRecentSearches)
		r.Post("/recent-searches", s.handleSaveRecentSearch)
		r.Delete("/recent-searches", s.handleClearRecentSearches)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		}
		if r.Body != nil && r.ContentLength != 0 {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()
		next.ServeHTTP(w, r.WithContext(withBody(r.Context(), rec.Body)))
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		queue := s.failures[key]
		status, fail := 0, len(queue) > 0
		if fail {
			status = queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if !fail {
			next.ServeHTTP(w, r)
			return
		}
		if status == 0 {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
	})
}

func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.ToLower(q.Get("name"))
	page := atoiDefault(q.Get("page"), 1)
	perPage := atoiDefault(q.Get("per_page"), 25)

	s.mu.Lock()
	var matches []models.Establishment
	for _, e := range s.establishments {
		if !strings.Contains(strings.ToLower(e.Name), term) {
			continue
		}
		if boro := q.Get("boro"); boro != "" && !strings.EqualFold(e.Borough, boro) {
			continue
		}
		if cuisine := q.Get("cuisine"); cuisine != "" && !strings.EqualFold(e.Cuisine, cuisine) {
			continue
		}
		matches = append(matches, e)
	}
	s.mu.Unlock()

	if q.Get("sort") == "name_asc" {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	}

	start := (page - 1) * perPage
	if start > len(matches) {
		start = len(matches)
	}
	end := start + perPage
	if end > len(matches) {
		end = len(matches)
	}
	writeJSON(w, http.StatusOK, matches[start:end])
}

func (s *Server) handleRecentActions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.recent)
}

func (s *Server) handleEstablishment(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "camis"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r.Context())
	s.mu.Lock()
	s.reports = append(s.reports, Report{
		CAMIS:     stringField(body, "camis"),
		IssueType: stringField(body, "issue_type"),
		Comments:  stringField(body, "comments"),
	})
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	token := stringField(bodyOf(r.Context()), "identityToken")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identityToken required"})
		return
	}
	s.mu.Lock()
	s.users[token] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	s.mu.Lock()
	delete(s.users, token)
	delete(s.favorites, token)
	delete(s.recentSearches, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	ids := s.Favorites(bearer(r))
	out := make([]models.Establishment, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.lookup(id); ok {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	camis := stringField(bodyOf(r.Context()), "camis")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.favorites[token] {
		if id == camis {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.favorites[token] = append(s.favorites[token], camis)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	camis := chi.URLParam(r, "camis")
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.favorites[token][:0:0]
	for _, id := range s.favorites[token] {
		if id != camis {
			kept = append(kept, id)
		}
	}
	s.favorites[token] = kept
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRecentSearches(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.RecentSearch{}, s.recentSearches[bearer(r)]...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveRecentSearch(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	term := stringField(bodyOf(r.Context()), "search_term")
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := models.RecentSearch{ID: s.nextSearchID, Display: term, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	s.nextSearchID++
	s.recentSearches[token] = append([]models.RecentSearch{entry}, s.recentSearches[token]...)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleClearRecentSearches(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.recentSearches, bearer(r))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(camis string) (models.Establishment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.establishments {
		if e.CAMIS == camis {
			return e, true
		}
	}
	return models.Establishment{}, false
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

func stringField(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type bodyKey struct{}

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}

func bodyOf(ctx context.Context) map[string]any {
	body, _ := ctx.Value(bodyKey{}).(map[string]any)
	return body
}
