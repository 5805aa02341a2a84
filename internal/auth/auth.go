// Package auth decides which callers may mutate the registry.
package auth

import (
	"strings"
	"sync"
)

// Authorizer answers whether a caller may issue or revoke certificates.
type Authorizer interface {
	IsAuthorizedIssuer(callerID string) bool
}

// AllowAll authorizes every non-empty caller.
type AllowAll struct{}

func (AllowAll) IsAuthorizedIssuer(callerID string) bool {
	return strings.TrimSpace(callerID) != ""
}

// Static authorizes a fixed set of caller ids. The set can be replaced at
// runtime, e.g. on config reload.
type Static struct {
	mu      sync.RWMutex
	callers map[string]struct{}
}

// NewStatic creates an authorizer for the given caller ids. Blank entries are
// ignored.
func NewStatic(callerIDs ...string) *Static {
	s := &Static{}
	s.Update(callerIDs)
	return s
}

// Update replaces the authorized set.
func (s *Static) Update(callerIDs []string) {
	callers := make(map[string]struct{}, len(callerIDs))
	for _, id := range callerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		callers[id] = struct{}{}
	}

	s.mu.Lock()
	s.callers = callers
	s.mu.Unlock()
}

// IsAuthorizedIssuer implements Authorizer.
func (s *Static) IsAuthorizedIssuer(callerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.callers[callerID]
	return ok
}

// Len returns the number of authorized callers.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.callers)
}
