// Package schemavalidation checks issue-request documents against the
// embedded JSON schema before they reach the registry.
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"credledger/internal/credential"
)

const issueRequestURL = "https://credledger.local/schema/issue-request-v1.schema.json"

//go:embed issue-request-v1.schema.json
var issueRequestSchema []byte

// ErrInvalidRequest is returned for documents that fail the schema.
var ErrInvalidRequest = errors.New("schemavalidation: invalid issue request")

// Violation is one failed schema assertion.
type Violation struct {
	Path    string
	Message string
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		path := v.Path
		if path == "" {
			path = "/"
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", path, v.Message))
	}
	return fmt.Sprintf("%v: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// Is lets errors.Is match ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

var compileIssueRequest = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(issueRequestURL, bytes.NewReader(issueRequestSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(issueRequestURL)
})

// ValidateIssueRequest checks data against the issue-request schema.
func ValidateIssueRequest(data []byte) error {
	schema, err := compileIssueRequest()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return &ValidationError{Violations: []Violation{{Message: err.Error()}}}
	}

	if err := schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return fmt.Errorf("validate: %w", err)
		}
		return &ValidationError{Violations: violations(ve)}
	}
	return nil
}

func violations(ve *jsonschema.ValidationError) []Violation {
	var out []Violation
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" {
			continue
		}
		out = append(out, Violation{Path: e.InstanceLocation, Message: e.Error})
	}
	if len(out) == 0 {
		out = append(out, Violation{Path: ve.InstanceLocation, Message: ve.Message})
	}
	return out
}

// DecodeIssueRequest validates data and decodes it into a certificate
// ready for issuance. Derived fields are left zero.
func DecodeIssueRequest(data []byte) (*credential.Certificate, error) {
	if err := ValidateIssueRequest(data); err != nil {
		return nil, err
	}

	var cert credential.Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, fmt.Errorf("decode issue request: %w", err)
	}
	return &cert, nil
}
