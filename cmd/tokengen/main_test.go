package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatmimic/internal/auth"
)

func TestTokengen(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "tg-gateway", "--secret", "s3cret", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	sub, err := auth.ParseJWT(strings.TrimSpace(out.String()), "s3cret")
	require.NoError(t, err)
	require.Equal(t, "tg-gateway", sub)
}

func TestTokengen_RejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	require.Error(t, cmd.Execute())
}
