package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTokenRoundTrip(t *testing.T) {
	assert := assert.New(t)

	token, err := GenerateSchedulerToken("test-secret", "scheduler", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateSchedulerToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal("scheduler", claims.Scope)
	assert.Equal("publisher", claims.Issuer)
}

func TestValidateSchedulerTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateSchedulerToken("test-secret", "scheduler", time.Hour)
	require.NoError(t, err)

	_, err = ValidateSchedulerToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateSchedulerTokenRejectsExpired(t *testing.T) {
	token, err := GenerateSchedulerToken("test-secret", "scheduler", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateSchedulerToken("test-secret", token)
	assert.Error(t, err)
}
