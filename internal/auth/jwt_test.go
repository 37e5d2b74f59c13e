package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignParse(t *testing.T) {
	tok, err := SignJWT("telegram-gateway", "s3cret", time.Hour)
	require.NoError(t, err)

	sub, err := ParseJWT(tok, "s3cret")
	require.NoError(t, err)
	require.Equal(t, "telegram-gateway", sub)

	_, err = ParseJWT(tok, "other")
	require.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	tok, err := SignJWT("gw", "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(tok, "s3cret")
	require.Error(t, err)
}

func TestSign_EmptySecret(t *testing.T) {
	_, err := SignJWT("gw", "", time.Hour)
	require.Error(t, err)
}
