package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-acme/lego/v4/challenge"
)

var _ challenge.ProviderTimeout = (*Provider)(nil)

// Provider implements lego's challenge.Provider on top of a remote responder.
type Provider struct {
	client *Client
	ttl    time.Duration
}

// NewProvider returns a Provider that registers challenges with ttl. Zero
// lets the responder pick its default.
func NewProvider(c *Client, ttl time.Duration) *Provider {
	return &Provider{client: c, ttl: ttl}
}

// Present registers keyAuth under token for domain.
func (p *Provider) Present(domain, token, keyAuth string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := p.client.Register(ctx, RegisterRequest{
		Domain:           domain,
		VerificationPath: token,
		KeyAuthorization: keyAuth,
		TTL:              p.ttl,
	})
	if err != nil {
		return fmt.Errorf("present http-01 challenge for %s: %w", domain, err)
	}
	return nil
}

// CleanUp retires the challenge for domain.
func (p *Provider) CleanUp(domain, token, keyAuth string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Retire(ctx, domain); err != nil {
		return fmt.Errorf("clean up http-01 challenge for %s: %w", domain, err)
	}
	return nil
}

// Timeout implements challenge.ProviderTimeout.
func (p *Provider) Timeout() (timeout, interval time.Duration) {
	return 2 * time.Minute, 2 * time.Second
}
