package session

import (
	"testing"
	"time"

	"github.com/cinelog/catalog-api/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(c *Codec, at time.Time) {
	c.now = func() time.Time { return at }
}

func TestCodec_IssueOpaque(t *testing.T) {
	c := NewCodec("", 0)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fixedClock(c, at)

	tok, err := c.Issue("alice")
	require.NoError(t, err)

	_, err = uuid.Parse(tok.Value)
	assert.NoError(t, err, "opaque tokens are UUIDs")
	assert.Equal(t, at.Add(52*7*24*time.Hour), tok.ExpiresAt)
	assert.Equal(t, tok.ExpiresAt, c.Expiry())
}

func TestCodec_IssueIsFresh(t *testing.T) {
	c := NewCodec("", 0)

	a, err := c.Issue("alice")
	require.NoError(t, err)
	b, err := c.Issue("alice")
	require.NoError(t, err)

	assert.NotEqual(t, a.Value, b.Value)
}

func TestCodec_IssueRejectsEmptyName(t *testing.T) {
	_, err := NewCodec("", 0).Issue("")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_FilterOpaque(t *testing.T) {
	c := NewCodec("", 0)

	f, err := c.Filter("alice", "tok")
	require.NoError(t, err)
	assert.Equal(t, models.SessionFilter{Name: "alice", Token: "tok"}, f)

	for _, tc := range []struct{ name, token string }{
		{"", "tok"},
		{"alice", ""},
		{"", ""},
	} {
		_, err := c.Filter(tc.name, tc.token)
		assert.ErrorIs(t, err, ErrMalformed)
	}
}

func TestCodec_SignedRoundTrip(t *testing.T) {
	c := NewCodec("secret", time.Hour)
	require.True(t, c.Signed())

	tok, err := c.Issue("alice")
	require.NoError(t, err)

	f, err := c.Filter("alice", tok.Value)
	require.NoError(t, err)
	assert.Equal(t, tok.Value, f.Token)
}

func TestCodec_SignedRejectsMismatch(t *testing.T) {
	c := NewCodec("secret", time.Hour)
	tok, err := c.Issue("alice")
	require.NoError(t, err)

	_, err = c.Filter("bob", tok.Value)
	assert.ErrorIs(t, err, ErrMalformed, "token bound to another name")

	other := NewCodec("other-secret", time.Hour)
	_, err = other.Filter("alice", tok.Value)
	assert.ErrorIs(t, err, ErrMalformed, "token signed with another key")

	_, err = c.Filter("alice", uuid.NewString())
	assert.ErrorIs(t, err, ErrMalformed, "opaque token under signing mode")
}

func TestCodec_SignedTokensDoNotExpire(t *testing.T) {
	c := NewCodec("secret", time.Hour)
	fixedClock(c, time.Now().Add(-5*365*24*time.Hour))

	tok, err := c.Issue("alice")
	require.NoError(t, err)

	_, err = NewCodec("secret", time.Hour).Filter("alice", tok.Value)
	assert.NoError(t, err)
}

func TestMatches(t *testing.T) {
	u := &models.User{Name: "alice", SessionToken: "tok"}

	assert.True(t, Matches(u, models.SessionFilter{Name: "alice", Token: "tok"}))
	assert.False(t, Matches(u, models.SessionFilter{Name: "alice", Token: "nope"}))
	assert.False(t, Matches(u, models.SessionFilter{Name: "bob", Token: "tok"}))
	assert.False(t, Matches(nil, models.SessionFilter{Name: "alice", Token: "tok"}))
}
