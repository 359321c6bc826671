package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/jmerrifield20/acmeresponder/pkg/client"
)

func TestProvider_PresentAndCleanUp(t *testing.T) {
	public, admin := newServers(t, nil)
	c, _ := client.New(admin.URL, client.WithPublicBase(public.URL))

	var p challenge.Provider = client.NewProvider(c, 0)

	if err := p.Present("example.com", "legoToken_1", "legoToken_1.thumbprint"); err != nil {
		t.Fatalf("Present: %v", err)
	}
	body, err := c.Lookup(context.Background(), "legoToken_1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(body) != "legoToken_1.thumbprint" {
		t.Errorf("body: got %q", body)
	}

	if err := p.CleanUp("example.com", "legoToken_1", "legoToken_1.thumbprint"); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}
	if _, err := c.Lookup(context.Background(), "legoToken_1"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("after CleanUp: expected ErrNotFound, got %v", err)
	}
}

func TestProvider_PresentRejected(t *testing.T) {
	_, admin := newServers(t, nil)
	c, _ := client.New(admin.URL)
	p := client.NewProvider(c, 0)

	err := p.Present("example.com", "bad/token", "k")
	if !errors.Is(err, client.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestProvider_Timeout(t *testing.T) {
	timeout, interval := client.NewProvider(nil, 0).Timeout()
	if timeout <= interval {
		t.Errorf("timeout %v should exceed interval %v", timeout, interval)
	}
}
