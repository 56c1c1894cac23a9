package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/internal/identity/models"
	dErrors "medguard/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	svc := New("test-signing-key", "medguard")
	session := models.Session{
		Address:  "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A",
		Role:     models.RolePatient,
		Nonce:    "abc123",
		IssuedAt: time.Now(),
	}

	token, err := svc.IssueSessionToken(session, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, session.Address, claims.Address)
	assert.Equal(t, string(models.RolePatient), claims.Role)
	assert.Equal(t, session.Nonce, claims.Nonce)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := New("test-signing-key", "medguard")
	session := models.Session{
		Address:  "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A",
		Role:     models.RolePatient,
		IssuedAt: time.Now().Add(-2 * time.Hour),
	}

	token, err := svc.IssueSessionToken(session, time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateWrongKey(t *testing.T) {
	token, err := New("key-one", "medguard").IssueSessionToken(models.Session{
		Address:  "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A",
		Role:     models.RoleDoctor,
		IssuedAt: time.Now(),
	}, time.Hour)
	require.NoError(t, err)

	_, err = New("key-two", "medguard").ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateGarbage(t *testing.T) {
	_, err := New("test-signing-key", "medguard").ValidateToken("not.a.token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
