// Package client is the Go SDK for the ACME HTTP-01 responder.
//
// Orchestrators use it to register and retire challenges on a responder
// running in another process:
//
//	c, err := client.New("http://127.0.0.1:8081",
//	    client.WithBearerToken(os.Getenv("RESPONDER_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tok, err := c.Register(ctx, client.RegisterRequest{
//	    Domain:           "example.com",
//	    VerificationPath: token,
//	    KeyAuthorization: keyAuth,
//	    TTL:              5 * time.Minute,
//	})
//	// ... let the CA validate ...
//	err = c.Retire(ctx, "example.com")
//
// # lego integration
//
// Provider adapts a Client to lego's challenge.Provider so the responder can
// answer HTTP-01 challenges for a lego-driven issuance:
//
//	err = legoClient.Challenge.SetHTTP01Provider(client.NewProvider(c, 0))
//
// # Checking what the CA will see
//
// Lookup fetches the public challenge URL the same way a validator does.
// Configure the public base with WithPublicBase:
//
//	c, _ := client.New(adminURL, client.WithPublicBase("http://example.com"))
//	body, err := c.Lookup(ctx, token)
package client
