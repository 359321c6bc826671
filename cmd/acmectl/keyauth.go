package main

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/acme"
)

// loadAccountKey reads an ACME account private key in PKCS#8, SEC 1 or PKCS#1 PEM form.
func loadAccountKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account key: %w", err)
	}
	return parseAccountKey(data)
}

func parseAccountKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("account key: no PEM block found")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("account key: %w", err)
		}
		return k, nil
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("account key: %w", err)
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("account key: %w", err)
		}
		signer, ok := k.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("account key: unsupported key type %T", k)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("account key: unsupported PEM type %q", block.Type)
	}
}

// keyAuthorization returns token.thumbprint for the account key.
func keyAuthorization(key crypto.Signer, token string) (string, error) {
	c := &acme.Client{Key: key}
	ka, err := c.HTTP01ChallengeResponse(token)
	if err != nil {
		return "", fmt.Errorf("compute key authorization: %w", err)
	}
	return ka, nil
}
