package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/mpesa-backend/internal/auth"
	"github.com/baharkarakas/mpesa-backend/internal/config"
)

func testConfig() config.Config {
	return config.Config{Env: "test", JWTSecret: "secret", JWTIssuer: "mpesa-backend", JWTTTL: time.Hour}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(testConfig())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--user", "u-1", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.NewTokenManager("secret", "mpesa-backend", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestTokenCommand_Errors(t *testing.T) {
	_, err := execute(t, "token")
	assert.Error(t, err, "--user is required")

	_, err = execute(t, "token", "--user", "u-1", "--role", "root")
	assert.ErrorContains(t, err, "unknown role")
}

func TestStkPushCommand_RejectsBadAmount(t *testing.T) {
	_, err := execute(t, "stkpush", "--phone", "0712345678", "--amount", "lots", "--ref", "x")
	assert.ErrorContains(t, err, "amount")
}
