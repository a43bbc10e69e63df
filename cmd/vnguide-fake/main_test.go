// ABOUTME: Tests for the fake backend command's token issuing
// ABOUTME: Issued tokens must verify against the same secret

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vnguide/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueToken(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--jwt-secret", testSecret, "--issue-token", "traveller"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))

	sub, err := auth.NewJWTVerifier([]byte(testSecret)).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "traveller", sub)
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	t.Setenv("VNGUIDE_FAKE_SECRET", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--issue-token", "traveller"})
	err := cmd.ExecuteContext(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jwt-secret")
}

func TestIssueToken_ShortSecret(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--jwt-secret", "short", "--issue-token", "traveller"})
	require.Error(t, cmd.ExecuteContext(t.Context()))
}
