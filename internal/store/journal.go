package store

import (
	"time"

	"credledger/internal/credential"
)

// Journal persists store mutations. Load returns certificates in issue
// order with their revocation state applied.
type Journal interface {
	Load() ([]credential.Certificate, error)
	RecordIssue(c *credential.Certificate) error
	RecordRevoke(id string, at time.Time) error
	Close() error
}
