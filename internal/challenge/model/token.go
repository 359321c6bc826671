package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the informational lifecycle state of a challenge token.
// It never gates lookup: a served token stays servable until it expires or is retired.
type Status string

const (
	StatusPending Status = "pending"
	StatusServed  Status = "served"
	StatusExpired Status = "expired"
	StatusRetired Status = "retired"
)

// Token is a registered HTTP-01 challenge.
type Token struct {
	ID               uuid.UUID `json:"id"`
	VerificationPath string    `json:"verification_path"`
	KeyAuthorization string    `json:"-"`
	Domain           string    `json:"domain"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	Deadline         time.Time `json:"deadline"`
}

// Live reports whether the token may still be served at now.
func (t *Token) Live(now time.Time) bool {
	return !now.After(t.Deadline)
}

// TTL returns the lifetime the token was registered with.
func (t *Token) TTL() time.Duration {
	return t.Deadline.Sub(t.CreatedAt)
}
