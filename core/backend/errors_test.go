package backend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth(NewAPIError(401, "bad token")))
	assert.True(t, IsAuth(fmt.Errorf("list: %w", NewAPIError(401, "bad token"))))
	assert.False(t, IsAuth(NewAPIError(404, "not_found")))
	assert.False(t, IsAuth(nil))
	assert.EqualError(t, NewAPIError(404, "not_found"), "not_found (status 404)")
}

func TestAccessToken(t *testing.T) {
	assert.Equal(t, "abc", AccessToken(map[string]any{"access_token": "abc"}))
	assert.Empty(t, AccessToken(map[string]any{"access_token": 3}))
}
