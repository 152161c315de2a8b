package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"cleanplate/internal/client/validate"
	"cleanplate/internal/establishment/models"
)

// SearchParams selects one page of search results. Empty filters are omitted
// from the query.
type SearchParams struct {
	Term    string
	Page    int
	PerPage int
	Grade   string
	Borough string
	Cuisine string
	Sort    string
}

// IssueReport is a user report about wrong establishment data.
type IssueReport struct {
	CAMIS     string `json:"camis"`
	IssueType string `json:"issue_type"`
	Comments  string `json:"comments"`
}

// Search returns one page of establishments matching p.Term.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]models.Establishment, error) {
	const op = "search"
	term, err := validate.SearchTerm(p.Term)
	if err != nil {
		return nil, ValidationError(op, err)
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPageSize
	}

	q := url.Values{}
	q.Set("name", term)
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("per_page", strconv.Itoa(p.PerPage))
	setIfPresent(q, "grade", p.Grade)
	setIfPresent(q, "boro", p.Borough)
	setIfPresent(q, "cuisine", p.Cuisine)
	setIfPresent(q, "sort", p.Sort)

	var out []models.Establishment
	err = c.do(ctx, call{op: op, method: http.MethodGet, path: []string{"search"}, query: q, retry: true}, &out)
	return out, err
}

// RecentActions returns the recently graded, closed and re-opened lists.
func (c *Client) RecentActions(ctx context.Context) (models.RecentActions, error) {
	var out models.RecentActions
	err := c.do(ctx, call{op: "recent_actions", method: http.MethodGet, path: []string{"lists", "recent-actions"}, retry: true}, &out)
	return out, err
}

// Establishment returns the full record for one identifier.
func (c *Client) Establishment(ctx context.Context, camis string) (models.Establishment, error) {
	const op = "establishment"
	id, err := validate.Identifier(camis)
	if err != nil {
		return models.Establishment{}, ValidationError(op, err)
	}
	var out models.Establishment
	err = c.do(ctx, call{op: op, method: http.MethodGet, path: []string{"restaurant", id}, retry: true}, &out)
	return out, err
}

// ReportIssue files an issue report. It is not retried.
func (c *Client) ReportIssue(ctx context.Context, r IssueReport) error {
	const op = "report_issue"
	var err error
	if r.CAMIS, err = validate.Identifier(r.CAMIS); err != nil {
		return ValidationError(op, err)
	}
	if r.IssueType, err = validate.IssueType(r.IssueType); err != nil {
		return ValidationError(op, err)
	}
	if r.Comments, err = validate.Comment(r.Comments); err != nil {
		return ValidationError(op, err)
	}
	return c.do(ctx, call{op: op, method: http.MethodPost, path: []string{"report-issue"}, body: r}, nil)
}

// CreateUser registers the identity token with the service.
func (c *Client) CreateUser(ctx context.Context, identityToken string) error {
	if identityToken == "" {
		return newError(KindInvalidRequest, "create_user", "identity token is required", ErrUnauthenticated).notRetryable()
	}
	body := struct {
		IdentityToken string `json:"identityToken"`
	}{identityToken}
	return c.do(ctx, call{op: "create_user", method: http.MethodPost, path: []string{"users"}, body: body}, nil)
}

// DeleteUser removes the signed-in account.
func (c *Client) DeleteUser(ctx context.Context, auth TokenSource) error {
	return c.do(ctx, call{op: "delete_user", method: http.MethodDelete, path: []string{"users"}, auth: auth}, nil)
}

// AddFavorite stores camis as a favorite of the signed-in user.
func (c *Client) AddFavorite(ctx context.Context, camis string, auth TokenSource) error {
	const op = "add_favorite"
	id, err := validate.Identifier(camis)
	if err != nil {
		return ValidationError(op, err)
	}
	body := struct {
		CAMIS string `json:"camis"`
	}{id}
	return c.do(ctx, call{op: op, method: http.MethodPost, path: []string{"favorites"}, body: body, auth: auth}, nil)
}

// RemoveFavorite deletes camis from the signed-in user's favorites.
func (c *Client) RemoveFavorite(ctx context.Context, camis string, auth TokenSource) error {
	const op = "remove_favorite"
	id, err := validate.Identifier(camis)
	if err != nil {
		return ValidationError(op, err)
	}
	return c.do(ctx, call{op: op, method: http.MethodDelete, path: []string{"favorites", id}, auth: auth}, nil)
}

// Favorites lists the signed-in user's favorites.
func (c *Client) Favorites(ctx context.Context, auth TokenSource) ([]models.Establishment, error) {
	var out []models.Establishment
	err := c.do(ctx, call{op: "favorites", method: http.MethodGet, path: []string{"favorites"}, auth: auth, retry: true}, &out)
	return out, err
}

// SaveRecentSearch records a search term for the signed-in user.
func (c *Client) SaveRecentSearch(ctx context.Context, term string, auth TokenSource) error {
	const op = "save_recent_search"
	term, err := validate.SearchTerm(term)
	if err != nil {
		return ValidationError(op, err)
	}
	body := struct {
		SearchTerm string `json:"search_term"`
	}{term}
	return c.do(ctx, call{op: op, method: http.MethodPost, path: []string{"recent-searches"}, body: body, auth: auth}, nil)
}

// RecentSearches lists the signed-in user's saved search terms.
func (c *Client) RecentSearches(ctx context.Context, auth TokenSource) ([]models.RecentSearch, error) {
	var out []models.RecentSearch
	err := c.do(ctx, call{op: "recent_searches", method: http.MethodGet, path: []string{"recent-searches"}, auth: auth, retry: true}, &out)
	return out, err
}

// ClearRecentSearches deletes every saved search term.
func (c *Client) ClearRecentSearches(ctx context.Context, auth TokenSource) error {
	return c.do(ctx, call{op: "clear_recent_searches", method: http.MethodDelete, path: []string{"recent-searches"}, auth: auth}, nil)
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
