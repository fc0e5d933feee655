package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlux/lumen-hub/internal/config"
)

func operatorConfig() config.Config {
	return config.Config{
		OperatorTokenSecret:    "an-operator-secret-of-sufficient-length",
		OperatorTokenExpirySec: 3600,
	}
}

func TestOperatorToken_RoundTrip(t *testing.T) {
	cfg := operatorConfig()

	token, err := GenerateOperatorToken(cfg, "alice")
	require.NoError(t, err)

	subject, err := VerifyOperatorToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "alice", subject)
}

func TestOperatorToken_WrongSecret(t *testing.T) {
	cfg := operatorConfig()
	token, err := GenerateOperatorToken(cfg, "alice")
	require.NoError(t, err)

	other := cfg
	other.OperatorTokenSecret = "a-different-secret-of-sufficient-length"
	_, err = VerifyOperatorToken(other, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestOperatorToken_Expired(t *testing.T) {
	cfg := operatorConfig()
	cfg.OperatorTokenExpirySec = -60

	token, err := GenerateOperatorToken(cfg, "alice")
	require.NoError(t, err)

	_, err = VerifyOperatorToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestOperatorToken_Garbage(t *testing.T) {
	_, err := VerifyOperatorToken(operatorConfig(), "not-a-jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
