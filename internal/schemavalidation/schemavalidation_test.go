package schemavalidation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRequest = `{
  "certificate_id": "MIT-2024-0001",
  "issuer": {"name": "MIT", "origin_id": "mit-edu", "verification_url": "https://mit.edu/verify"},
  "recipient": {"name": "Alice Smith", "student_id": "S12345", "principal_id": "alice"},
  "credential": {
    "degree_type": "BSc",
    "major": "Computer Science",
    "graduation_date": "2024-06-01",
    "issue_date": "2024-06-15",
    "gpa": 3.8,
    "honors": "Magna Cum Laude"
  }
}`

func TestValidateIssueRequest(t *testing.T) {
	require.NoError(t, ValidateIssueRequest([]byte(validRequest)))
}

func TestValidateIssueRequestWithoutID(t *testing.T) {
	doc := strings.Replace(validRequest, `"certificate_id": "MIT-2024-0001",`, "", 1)
	assert.NoError(t, ValidateIssueRequest([]byte(doc)))
}

func TestValidateIssueRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{
			name: "missing student id",
			doc:  strings.Replace(validRequest, `"student_id": "S12345", `, "", 1),
			path: "/recipient",
		},
		{
			name: "derived field supplied",
			doc:  strings.Replace(validRequest, `"certificate_id"`, `"content_hash": "00", "certificate_id"`, 1),
			path: "",
		},
		{
			name: "gpa out of range",
			doc:  strings.Replace(validRequest, `"gpa": 3.8`, `"gpa": 7`, 1),
			path: "/credential/gpa",
		},
		{
			name: "bad graduation date",
			doc:  strings.Replace(validRequest, `"2024-06-01"`, `"June 2024"`, 1),
			path: "/credential/graduation_date",
		},
		{
			name: "blank issuer",
			doc:  strings.Replace(validRequest, `"name": "MIT"`, `"name": ""`, 1),
			path: "/issuer/name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIssueRequest([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Violations)

			found := false
			for _, v := range verr.Violations {
				if strings.HasPrefix(v.Path, tt.path) {
					found = true
				}
			}
			assert.True(t, found, "no violation under %q: %v", tt.path, verr.Violations)
		})
	}
}

func TestValidateIssueRequestMalformedJSON(t *testing.T) {
	err := ValidateIssueRequest([]byte(`{"issuer":`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDecodeIssueRequest(t *testing.T) {
	cert, err := DecodeIssueRequest([]byte(validRequest))
	require.NoError(t, err)

	assert.Equal(t, "MIT-2024-0001", cert.ID)
	assert.Equal(t, "MIT", cert.Issuer.Name)
	assert.Equal(t, "S12345", cert.Recipient.StudentID)
	assert.Equal(t, "Computer Science", cert.Credential.Major)
	assert.InDelta(t, 3.8, cert.Credential.GPA, 1e-9)
	assert.False(t, cert.Revoked)
	assert.True(t, cert.IssuedAt.IsZero())

	_, err = DecodeIssueRequest([]byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
