package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsRequiresGitHubAndLLMTokens(t *testing.T) {
	t.Setenv("PRBENCH_GITHUB_TOKEN", "")
	t.Setenv("PRBENCH_LLM_API_KEY", "")

	_, err := LoadCredentials()
	assert.Error(t, err)
}

func TestLoadCredentialsSucceedsWithRequiredTokensSet(t *testing.T) {
	t.Setenv("PRBENCH_GITHUB_TOKEN", "gh-token")
	t.Setenv("PRBENCH_LLM_API_KEY", "llm-key")
	t.Setenv("PRBENCH_LOG_LEVEL", "")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "gh-token", creds.GitHubToken)
	assert.Equal(t, "llm-key", creds.LLMAPIKey)
	assert.Equal(t, "info", creds.LogLevel)
}
