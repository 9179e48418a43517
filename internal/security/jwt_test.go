package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortaizi/sync-service/internal/security"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	last := jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tok, err := security.MakeAccess("secret", security.Claims{
		UID:                 "u1",
		Email:               "alice@bgu.ac.il",
		Provider:            security.ProviderDualStageComplete,
		InstitutionID:       "bgu",
		IsDualStageComplete: true,
		LastSync:            last,
	}, time.Minute)
	require.NoError(t, err)

	c, err := security.ParseAccess("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UID)
	assert.Equal(t, security.ProviderDualStageComplete, c.Provider)
	assert.Equal(t, "bgu", c.InstitutionID)
	assert.True(t, c.IsDualStageComplete)
	assert.NotNil(t, c.LastSync)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	tok, err := security.MakeAccess("secret", security.Claims{UID: "u1", Provider: security.ProviderIdentityOnly}, time.Minute)
	require.NoError(t, err)

	_, err = security.ParseAccess("other", tok)
	assert.Error(t, err)
}

func TestAccessToken_Expired(t *testing.T) {
	tok, err := security.MakeAccess("secret", security.Claims{UID: "u1"}, -time.Minute)
	require.NoError(t, err)

	_, err = security.ParseAccess("secret", tok)
	assert.Error(t, err)
}
