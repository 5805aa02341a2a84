package auth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	a := NewStatic("registrar@mit", " registrar@stanford ", "")

	assert.Equal(t, 2, a.Len())
	assert.True(t, a.IsAuthorizedIssuer("registrar@mit"))
	assert.True(t, a.IsAuthorizedIssuer("registrar@stanford"))
	assert.False(t, a.IsAuthorizedIssuer("student@mit"))
	assert.False(t, a.IsAuthorizedIssuer(""))
}

func TestStaticUpdate(t *testing.T) {
	a := NewStatic("old")
	a.Update([]string{"new"})

	assert.False(t, a.IsAuthorizedIssuer("old"))
	assert.True(t, a.IsAuthorizedIssuer("new"))

	a.Update(nil)
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.IsAuthorizedIssuer("new"))
}

func TestStaticConcurrentUpdate(t *testing.T) {
	a := NewStatic("a")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Update([]string{"a", "b"})
		}()
		go func() {
			defer wg.Done()
			assert.True(t, a.IsAuthorizedIssuer("a"))
		}()
	}
	wg.Wait()
}

func TestAllowAll(t *testing.T) {
	var a Authorizer = AllowAll{}
	assert.True(t, a.IsAuthorizedIssuer("anyone"))
	assert.False(t, a.IsAuthorizedIssuer("  "))
}
