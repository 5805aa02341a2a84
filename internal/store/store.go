// Package store owns issued certificate records keyed by certificate id.
//
// Records are held in memory in issue order. An optional Journal makes every
// mutation durable before it is applied, so a rejected or failed write never
// leaves the in-memory state half-updated.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"credledger/internal/credential"
	"credledger/internal/hashcodec"
)

// Store is the certificate store. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	codec   hashcodec.Codec
	journal Journal
	certs   map[string]*credential.Certificate
	order   []string // issue order
	now     func() time.Time
}

// New creates an empty, memory-only store.
func New(codec hashcodec.Codec) *Store {
	if codec == nil {
		codec = hashcodec.Default()
	}
	return &Store{
		codec: codec,
		certs: make(map[string]*credential.Certificate),
		now:   time.Now,
	}
}

// ErrAlgorithmMismatch is returned by Open when the journal's records were
// hashed with a different algorithm than the codec supplied.
var ErrAlgorithmMismatch = errors.New("store: hash algorithm mismatch")

// AlgorithmBinder is implemented by journals that remember which hash
// algorithm their content hashes were computed with. BindAlgorithm records
// name on first use and fails with ErrAlgorithmMismatch afterwards if name
// differs.
type AlgorithmBinder interface {
	BindAlgorithm(name string) error
}

// Open creates a store backed by journal and replays its contents.
// Stored hashes are loaded as-is, so tampering with the journal surfaces
// as a hash mismatch at verification time. A journal that implements
// AlgorithmBinder must agree with codec.
func Open(codec hashcodec.Codec, journal Journal) (*Store, error) {
	s := New(codec)
	if journal == nil {
		return s, nil
	}

	if b, ok := journal.(AlgorithmBinder); ok {
		if err := b.BindAlgorithm(s.codec.Name()); err != nil {
			return nil, err
		}
	}

	certs, err := journal.Load()
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	for i := range certs {
		c := certs[i]
		if _, exists := s.certs[c.ID]; exists {
			return nil, fmt.Errorf("replay journal: %w: %s", credential.ErrDuplicateID, c.ID)
		}
		s.certs[c.ID] = &c
		s.order = append(s.order, c.ID)
	}

	s.journal = journal
	return s, nil
}

// Codec returns the codec used for content hashes.
func (s *Store) Codec() hashcodec.Codec {
	return s.codec
}

// Issue stores a new certificate. It computes the content hash over the
// canonical field set, sets the signature placeholder, and clears Revoked.
// IssuedAt and SchemaVersion are filled in when empty. A taken id fails
// with ErrDuplicateID before any other check.
func (s *Store) Issue(cert credential.Certificate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.ID]; exists {
		return "", fmt.Errorf("issue %s: %w", cert.ID, credential.ErrDuplicateID)
	}
	if err := cert.Validate(); err != nil {
		return "", err
	}

	cert.ContentHash = cert.ComputeHash(s.codec)
	cert.Signature = cert.ContentHash
	cert.Revoked = false
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = s.now().UTC()
	}
	if cert.SchemaVersion == "" {
		cert.SchemaVersion = credential.SchemaVersion
	}

	if s.journal != nil {
		if err := s.journal.RecordIssue(&cert); err != nil {
			return "", fmt.Errorf("issue %s: %w", cert.ID, err)
		}
	}

	s.certs[cert.ID] = &cert
	s.order = append(s.order, cert.ID)
	return cert.ID, nil
}

// Get returns a copy of the certificate with the given id.
func (s *Store) Get(id string) (*credential.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.certs[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Revoke marks a certificate revoked. Revoking an already revoked
// certificate succeeds and reports changed=false.
func (s *Store) Revoke(id string) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.certs[id]
	if !ok {
		return false, fmt.Errorf("revoke %s: %w", id, credential.ErrNotFound)
	}
	if c.Revoked {
		return false, nil
	}

	if s.journal != nil {
		if err := s.journal.RecordRevoke(id, s.now().UTC()); err != nil {
			return false, fmt.Errorf("revoke %s: %w", id, err)
		}
	}

	c.Revoked = true
	return true, nil
}

// ListByStudent returns certificates for a student id in issue order.
func (s *Store) ListByStudent(studentID string) []*credential.Certificate {
	return s.filter(func(c *credential.Certificate) bool {
		return c.Recipient.StudentID == studentID
	})
}

// ListByIssuer returns certificates from an issuer name in issue order.
func (s *Store) ListByIssuer(issuerName string) []*credential.Certificate {
	return s.filter(func(c *credential.Certificate) bool {
		return c.Issuer.Name == issuerName
	})
}

// All returns every certificate in issue order.
func (s *Store) All() []*credential.Certificate {
	return s.filter(func(*credential.Certificate) bool { return true })
}

func (s *Store) filter(match func(*credential.Certificate) bool) []*credential.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*credential.Certificate, 0)
	for _, id := range s.order {
		if c := s.certs[id]; match(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Count returns the number of issued certificates, revoked included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs)
}

// LeafHashes returns every content hash in canonical order: sorted by
// certificate id, so the same certificate set always yields the same
// sequence regardless of issue order.
func (s *Store) LeafHashes() []hashcodec.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := append([]string(nil), s.order...)
	sort.Strings(ids)

	leaves := make([]hashcodec.Hash, len(ids))
	for i, id := range ids {
		leaves[i] = s.certs[id].ContentHash
	}
	return leaves
}

// Stats returns the number of active and revoked certificates.
func (s *Store) Stats() (active, revoked int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certs {
		if c.Revoked {
			revoked++
		} else {
			active++
		}
	}
	return active, revoked
}
