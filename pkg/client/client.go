package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/challenge/http01"
)

// Errors returned for well-known admin API failures.
var (
	ErrNotFound         = errors.New("challenge not found")
	ErrInvalidRequest   = errors.New("invalid challenge request")
	ErrConflict         = errors.New("verification path already registered for another domain")
	ErrCapacityExceeded = errors.New("responder at capacity; retry later")
	ErrUnauthorized     = errors.New("unauthorized")
)

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	Domain           string
	VerificationPath string
	KeyAuthorization string
	TTL              time.Duration
}

// Challenge is the challenge metadata returned by the admin API.
// Key authorizations are never returned.
type Challenge struct {
	ID               string    `json:"id"`
	VerificationPath string    `json:"verification_path"`
	Domain           string    `json:"domain"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	Deadline         time.Time `json:"deadline"`
}

// Client talks to a responder's admin API.
type Client struct {
	adminBase   string
	publicBase  string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an admin token to every admin API request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithPublicBase sets the base URL of the public challenge listener used by
// Lookup, e.g. "http://example.com".
func WithPublicBase(base string) Option {
	return func(c *Client) error {
		if _, err := url.Parse(base); err != nil {
			return fmt.Errorf("parse public base: %w", err)
		}
		c.publicBase = strings.TrimSuffix(base, "/")
		return nil
	}
}

// New creates a Client for the admin API at adminBase.
func New(adminBase string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(adminBase); err != nil {
		return nil, fmt.Errorf("parse admin base: %w", err)
	}
	c := &Client{
		adminBase:  strings.TrimSuffix(adminBase, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register posts to /api/v1/challenges.
func (c *Client) Register(ctx context.Context, reg RegisterRequest) (*Challenge, error) {
	payload, err := json.Marshal(map[string]any{
		"domain":            reg.Domain,
		"verification_path": reg.VerificationPath,
		"key_authorization": reg.KeyAuthorization,
		"ttl_seconds":       ttlSeconds(reg.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.adminBase+"/api/v1/challenges", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var ch Challenge
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("decode challenge response: %w", err)
	}
	return &ch, nil
}

// Retire deletes the challenge for domain. Retiring an unknown domain succeeds.
func (c *Client) Retire(ctx context.Context, domain string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.challengeURL(domain), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	_, err = c.do(req)
	return err
}

// Get returns the live challenge for domain.
func (c *Client) Get(ctx context.Context, domain string) (*Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.challengeURL(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var ch Challenge
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("decode challenge response: %w", err)
	}
	return &ch, nil
}

// List returns every live challenge.
func (c *Client) List(ctx context.Context) ([]Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminBase+"/api/v1/challenges", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Challenges []Challenge `json:"challenges"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return resp.Challenges, nil
}

// Lookup fetches the public challenge resource for token exactly as a CA
// validator would and returns the body. It requires WithPublicBase.
func (c *Client) Lookup(ctx context.Context, token string) ([]byte, error) {
	if c.publicBase == "" {
		return nil, errors.New("public base URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicBase+http01.ChallengePath(token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// ttlSeconds rounds ttl up to whole seconds so a short positive TTL is never
// sent as 0, which the responder reads as "use the default".
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

func (c *Client) challengeURL(domain string) string {
	return c.adminBase + "/api/v1/challenges/" + url.PathEscape(domain)
}

// do sends an admin API request and maps error statuses onto sentinel errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, apiError(body))
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrConflict
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrCapacityExceeded
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, apiError(body))
	}
}

// apiError extracts the "error" field from a JSON error body.
func apiError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
