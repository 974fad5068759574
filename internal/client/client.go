// Package client is an HTTP client for the account service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/google/go-querystring/query"
	"github.com/sony/gobreaker"
)

// Client talks to one account service base URL, e.g. http://localhost:5000.
type Client struct {
	base string
	hc   *http.Client
	cb   *gobreaker.CircuitBreaker
}

// Option customizes Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithBreaker replaces the circuit breaker settings. IsSuccessful is always
// overridden so that only transport failures and 5xx answers trip it.
func WithBreaker(st gobreaker.Settings) Option {
	return func(c *Client) {
		st.IsSuccessful = func(err error) bool { return !serverFault(err) }
		c.cb = gobreaker.NewCircuitBreaker(st)
	}
}

// New constructs a Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: 15 * time.Second},
	}
	WithBreaker(gobreaker.Settings{
		Name:    "account-service",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// AuthResult is a successful signup or login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      model.PublicUser
}

// Health is the service status.
type Health struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UsersCount int    `json:"usersCount"`
}

// LeaderboardQuery selects the ranking metric and page size. Zero values use server defaults.
type LeaderboardQuery struct {
	Sort  string `url:"sort,omitempty"`
	Limit int    `url:"limit,omitempty"`
}

// LevelsQuery filters and orders the level listing.
type LevelsQuery struct {
	Difficulty string `url:"difficulty,omitempty"`
	Sort       string `url:"sort,omitempty"`
}

type authBody struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Data      struct {
		User model.PublicUser `json:"user"`
	} `json:"data"`
}

type userBody struct {
	Data struct {
		User model.PublicUser `json:"user"`
	} `json:"data"`
}

// Signup registers an account.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (AuthResult, error) {
	var out authBody
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", "", in, &out); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: out.Token, ExpiresAt: out.ExpiresAt, User: out.Data.User}, nil
}

// Login authenticates with a username or email.
func (c *Client) Login(ctx context.Context, identifier, password string) (AuthResult, error) {
	in := map[string]string{"username": identifier, "password": password}
	var out authBody
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", in, &out); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: out.Token, ExpiresAt: out.ExpiresAt, User: out.Data.User}, nil
}

// Me returns the account bound to token.
func (c *Client) Me(ctx context.Context, token string) (model.PublicUser, error) {
	var out userBody
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &out); err != nil {
		return model.PublicUser{}, err
	}
	return out.Data.User, nil
}

// UpdateProgress pushes a snapshot and returns the merged account.
func (c *Client) UpdateProgress(ctx context.Context, token string, snap model.Snapshot) (model.PublicUser, error) {
	var out userBody
	if err := c.do(ctx, http.MethodPatch, "/api/auth/update-progress", token, snap, &out); err != nil {
		return model.PublicUser{}, err
	}
	return out.Data.User, nil
}

// Health reports service status and the number of accounts.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &out)
	return out, err
}

// Leaderboard fetches ranked accounts.
func (c *Client) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]model.LeaderboardEntry, error) {
	vals, err := query.Values(q)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data struct {
			Entries []model.LeaderboardEntry `json:"entries"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/leaderboard", vals.Encode()), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Data.Entries, nil
}

// Levels fetches the level catalog and the total XP available.
func (c *Client) Levels(ctx context.Context, q LevelsQuery) ([]catalog.Level, int, error) {
	vals, err := query.Values(q)
	if err != nil {
		return nil, 0, err
	}
	var out struct {
		Data struct {
			Levels  []catalog.Level `json:"levels"`
			TotalXP int             `json:"totalXP"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/levels", vals.Encode()), "", nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Data.Levels, out.Data.TotalXP, nil
}

func withQuery(path, raw string) string {
	if raw == "" {
		return path
	}
	return path + "?" + raw
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, token, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			apiErr.RetryAfter = time.Duration(n) * time.Second
		}
	}
	return apiErr
}
