package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/projectbarber/barber/libs/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminSigner(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := adminSigner(logger, "")
	require.NoError(t, err)
	assert.Nil(t, signer, "no secret disables admin routes")

	signer, err = adminSigner(logger, "admin-secret")
	require.NoError(t, err)
	require.NotNil(t, signer)

	token, _, err := signer.Issue(auth.Claims{Role: auth.RoleAdmin, Username: "admin"}, time.Hour)
	require.NoError(t, err)
	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestHashPasswordCommand(t *testing.T) {
	assert.Equal(t, 2, hashPassword(nil))
	assert.Equal(t, 2, hashPassword([]string{""}))
}
