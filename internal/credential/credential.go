// Package credential defines the academic certificate record, its canonical
// hash domain and the result type returned by verification.
package credential

import (
	"encoding/binary"
	"errors"
	"time"

	"credledger/internal/hashcodec"
)

// SchemaVersion is stamped on certificates issued without an explicit version.
const SchemaVersion = "1.0"

// Errors shared by the store and registry layers.
var (
	// ErrDuplicateID indicates a certificate id that is already in use.
	ErrDuplicateID = errors.New("credential: duplicate certificate id")

	// ErrNotFound indicates the requested certificate does not exist.
	ErrNotFound = errors.New("credential: certificate not found")

	// ErrUnauthorized indicates the caller is not a registered issuer.
	ErrUnauthorized = errors.New("credential: caller is not an authorized issuer")

	// ErrInvalidCertificate indicates a record without a certificate id.
	ErrInvalidCertificate = errors.New("credential: invalid certificate")
)

// Issuer identifies the institution that issued a certificate.
type Issuer struct {
	Name            string `json:"name"`
	OriginID        string `json:"origin_id"`
	VerificationURL string `json:"verification_url"`
}

// Recipient identifies the student the certificate was issued to.
type Recipient struct {
	Name        string `json:"name"`
	StudentID   string `json:"student_id"`
	PrincipalID string `json:"principal_id"`
}

// Credential holds the academic award details.
type Credential struct {
	DegreeType     string  `json:"degree_type"`
	Major          string  `json:"major"`
	GraduationDate string  `json:"graduation_date"`
	IssueDate      string  `json:"issue_date"`
	GPA            float64 `json:"gpa"`
	Honors         string  `json:"honors"`
}

// Certificate is an issued academic credential. Every field except Revoked
// is immutable once issued.
type Certificate struct {
	ID            string         `json:"certificate_id"`
	Issuer        Issuer         `json:"issuer"`
	Recipient     Recipient      `json:"recipient"`
	Credential    Credential     `json:"credential"`
	ContentHash   hashcodec.Hash `json:"content_hash"`
	Signature     hashcodec.Hash `json:"signature"`
	Revoked       bool           `json:"revoked"`
	IssuedAt      time.Time      `json:"issued_at"`
	SchemaVersion string         `json:"schema_version"`
}

// Status returns the lifecycle state name.
func (c *Certificate) Status() string {
	if c.Revoked {
		return "revoked"
	}
	return "active"
}

// Clone returns a copy safe to hand to callers.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate checks that the certificate can be keyed. Every other field may
// be empty; issue requests are checked for completeness before they reach
// the store.
func (c *Certificate) Validate() error {
	if c.ID == "" {
		return errors.Join(ErrInvalidCertificate, errors.New("certificate_id is required"))
	}
	return nil
}

// CanonicalBytes returns the encoding of the hash domain:
//
//	id, issuer.name, recipient.name, recipient.student_id,
//	credential.degree_type, credential.major, credential.graduation_date
//
// Each field is written as a 4-byte big-endian length followed by its bytes.
// IssueDate, GPA and Honors are not part of the domain.
func (c *Certificate) CanonicalBytes() []byte {
	fields := []string{
		c.ID,
		c.Issuer.Name,
		c.Recipient.Name,
		c.Recipient.StudentID,
		c.Credential.DegreeType,
		c.Credential.Major,
		c.Credential.GraduationDate,
	}

	size := 0
	for _, f := range fields {
		size += 4 + len(f)
	}

	buf := make([]byte, 0, size)
	for _, f := range fields {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f)))
		buf = append(buf, f...)
	}
	return buf
}

// ComputeHash hashes the canonical domain with the given codec.
func (c *Certificate) ComputeHash(codec hashcodec.Codec) hashcodec.Hash {
	return codec.Hash(c.CanonicalBytes())
}
