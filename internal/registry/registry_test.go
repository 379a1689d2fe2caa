package registry

import (
	"net/http"
	"testing"

	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{ dsn string }

type mailer interface{ Send(to string) error }

type fakeMailer struct{ sent []string }

func (m *fakeMailer) Send(to string) error {
	m.sent = append(m.sent, to)
	return nil
}

func TestRegisterResolve(t *testing.T) {
	t.Parallel()

	r := New()
	Register(r, &fakeStore{dsn: "file:test.db"})

	got, err := Resolve[*fakeStore](r)
	require.NoError(t, err)
	assert.Equal(t, "file:test.db", got.dsn)
}

func TestResolveByInterface(t *testing.T) {
	t.Parallel()

	r := New()
	Register[mailer](r, &fakeMailer{})

	m, err := Resolve[mailer](r)
	require.NoError(t, err)
	require.NoError(t, m.Send("ops@example.com"))
}

func TestResolveMissingIsInternal(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := Resolve[*fakeStore](r)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, envelope.AsError(err).StatusCode)
	assert.Contains(t, err.Error(), "dependency not found")
}

func TestReRegisterOverwrites(t *testing.T) {
	t.Parallel()

	r := New()
	Register(r, &fakeStore{dsn: "first"})
	Register(r, &fakeStore{dsn: "second"})

	got, err := Resolve[*fakeStore](r)
	require.NoError(t, err)
	assert.Equal(t, "second", got.dsn)
}

func TestMustResolvePanics(t *testing.T) {
	t.Parallel()

	r := New()
	assert.Panics(t, func() { MustResolve[mailer](r) })
}
