package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codeshare/internal/model"
)

func TestUserHandler_Profile(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.user(t, "alice")
	_, bobToken := env.user(t, "bob")
	env.create(t, aliceToken, map[string]any{"title": "Open", "code": "x", "language": "Go"})
	env.create(t, aliceToken, map[string]any{"title": "Hidden", "code": "x", "language": "Python", "isPublic": false})

	t.Run("visitor", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/users/"+alice.ID, nil, bobToken)
		require.Equal(t, http.StatusOK, rr.Code)
		p := decode[model.Profile](t, rr)

		assert.False(t, p.IsOwner)
		assert.Empty(t, p.User.Email)
		require.Len(t, p.Snippets, 1)
		assert.Equal(t, "Open", p.Snippets[0].Title)
		// Stats cover everything the user owns.
		assert.Equal(t, 2, p.Stats.Total)
		assert.Equal(t, 1, p.Stats.Private)
	})

	t.Run("owner", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/users/"+alice.ID, nil, aliceToken)
		require.Equal(t, http.StatusOK, rr.Code)
		p := decode[model.Profile](t, rr)

		assert.True(t, p.IsOwner)
		assert.Equal(t, "alice@example.com", p.User.Email)
		assert.Len(t, p.Snippets, 2)
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/users/nobody", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
