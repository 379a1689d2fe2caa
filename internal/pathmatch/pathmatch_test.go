package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"users", "/users"},
		{"/users/", "/users"},
		{"/users//", "/users"},
		{"/users/42", "/users/42"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/users/:id", Join("/users", "/:id"))
	assert.Equal(t, "/users", Join("/", "users/"))
	assert.Equal(t, "/users", Join("users", "/"))
}

func TestMatchLiteral(t *testing.T) {
	t.Parallel()

	params, ok := Match("/users", "/users/")
	assert.True(t, ok)
	assert.Empty(t, params)

	_, ok = Match("/users", "/orders")
	assert.False(t, ok)

	_, ok = Match("/users", "/users/42")
	assert.False(t, ok)
}

func TestMatchParams(t *testing.T) {
	t.Parallel()

	params, ok := Match("/users/:id", "/users/42")
	assert.True(t, ok)
	assert.Equal(t, "42", params["id"])

	params, ok = Match("/users/:id/orders/:oid", "/users/7/orders/99")
	assert.True(t, ok)
	assert.Equal(t, "7", params["id"])
	assert.Equal(t, "99", params["oid"])

	_, ok = Match("/users/:id", "/users")
	assert.False(t, ok)
}
