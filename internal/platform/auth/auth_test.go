package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

func TestPrincipalIsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"no roles", nil, false},
		{"lowercase", []string{"admin"}, true},
		{"mixed case", []string{"buyer", "Admin"}, true},
		{"padded", []string{" ADMIN "}, true},
		{"prefix only", []string{"administrator"}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Principal{UserID: "u1", Roles: tt.roles}.IsAdmin())
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1"})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
}

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "procurement")

	token, err := v.Issue(Principal{UserID: "u1", Roles: []string{"admin"}}, time.Minute)
	require.NoError(t, err)

	p, err := v.VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.True(t, p.IsAdmin())
}

func TestTokenRejected(t *testing.T) {
	v := NewTokenVerifier("secret", "procurement")
	other := NewTokenVerifier("other-secret", "procurement")
	wrongIssuer := NewTokenVerifier("secret", "someone-else")

	forged, err := other.Issue(Principal{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue(Principal{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue(Principal{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Issue(Principal{}, time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":    "",
		"no scheme":  forged,
		"basic":      "Basic abc",
		"forged":     "Bearer " + forged,
		"expired":    "Bearer " + expired,
		"issuer":     "Bearer " + foreign,
		"no subject": "Bearer " + noSubject,
	} {
		header := header
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyHeader(header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
		})
	}
}
